package recognition

import (
	"image"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/kozaktomas/carecam/internal/facematch"
)

const labelSize = 18

var labelFont = sync.OnceValue(func() *truetype.Font {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil
	}
	return f
})

// Annotate draws a box and the name of every matched face. Unknown faces
// are left unmarked. The input frame is never modified; without matches it
// is returned as is.
func Annotate(frame image.Image, results []facematch.Result) image.Image {
	known := 0
	for _, r := range results {
		if r.Known() {
			known++
		}
	}
	if known == 0 {
		return frame
	}

	dc := gg.NewContextForImage(frame)
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(2)
	if f := labelFont(); f != nil {
		// a face keeps glyph caches and is not safe to share
		dc.SetFontFace(truetype.NewFace(f, &truetype.Options{
			Size:    labelSize,
			DPI:     72,
			Hinting: font.HintingNone,
		}))
	}

	for _, r := range results {
		if !r.Known() {
			continue
		}
		b := r.Box
		dc.DrawRectangle(b.X1, b.Y1, b.Width(), b.Height())
		dc.Stroke()

		y := b.Y1 - 10
		if y < labelSize {
			y = b.Y2 + labelSize + 4
		}
		dc.DrawString(r.Name, b.X1, y)
	}
	return dc.Image()
}
