package facematch

import (
	"image"
	"math"
)

// BBox is a face bounding box in pixel corner coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BBoxFromSlice converts the detector's [x1, y1, x2, y2] form. Anything else
// yields the zero box.
func BBoxFromSlice(s []float64) BBox {
	if len(s) != 4 {
		return BBox{}
	}
	return BBox{X1: s[0], Y1: s[1], X2: s[2], Y2: s[3]}
}

// Scale multiplies every coordinate by f. A box found on a frame downsampled
// by 0.25 is brought back to full-frame coordinates with Scale(4).
func (b BBox) Scale(f float64) BBox {
	return BBox{X1: b.X1 * f, Y1: b.Y1 * f, X2: b.X2 * f, Y2: b.Y2 * f}
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Rect rounds the box to integer pixels and clips it to bounds.
func (b BBox) Rect(bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Round(b.X1)), int(math.Round(b.Y1)),
		int(math.Round(b.X2)), int(math.Round(b.Y2)),
	)
	return r.Intersect(bounds)
}

// Offset moves the box by p, for frames whose bounds do not start at 0,0.
func (b BBox) Offset(p image.Point) BBox {
	dx, dy := float64(p.X), float64(p.Y)
	return BBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}
