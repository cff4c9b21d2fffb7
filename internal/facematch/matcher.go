package facematch

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
)

const (
	DefaultTolerance        = 0.5
	DefaultDownsampleFactor = 0.25
)

type Options struct {
	Tolerance        float64 // distances strictly below this match
	DownsampleFactor float64 // applied before detection
	Metric           Metric
	UseHNSW          bool
}

// Matcher recognizes the faces in a frame against a Gallery.
type Matcher struct {
	detector Detector
	gallery  Gallery
	opts     Options

	mu           sync.Mutex
	index        Index
	indexVersion uint64
	indexBuilt   bool
}

func NewMatcher(detector Detector, gallery Gallery, opts Options) *Matcher {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.DownsampleFactor <= 0 {
		opts.DownsampleFactor = DefaultDownsampleFactor
	}
	if opts.Metric == nil {
		opts.Metric = EuclideanDistance
	}
	return &Matcher{detector: detector, gallery: gallery, opts: opts}
}

// Recognize downsamples the frame, detects faces on the small copy and
// matches each one. Boxes are returned in full-frame coordinates, results in
// detection order. A frame without faces yields an empty slice.
func (m *Matcher) Recognize(ctx context.Context, frame image.Image) ([]Result, error) {
	small := Downsample(frame, m.opts.DownsampleFactor)
	data, err := EncodeJPEG(small)
	if err != nil {
		return nil, err
	}

	faces, err := m.detector.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	// The detector sees an image with its origin at 0,0.
	up := 1.0
	if small != frame {
		up = 1 / m.opts.DownsampleFactor
	}
	origin := frame.Bounds().Min
	for i := range faces {
		faces[i].Box = faces[i].Box.Scale(up).Offset(origin)
	}
	return m.MatchFaces(faces), nil
}

// MatchFaces classifies already detected faces.
func (m *Matcher) MatchFaces(faces []Face) []Result {
	results := make([]Result, 0, len(faces))
	if len(faces) == 0 {
		return results
	}

	entries, idx := m.currentIndex()
	for _, f := range faces {
		results = append(results, classify(idx, entries, f, m.opts.Tolerance))
	}
	return results
}

func (m *Matcher) currentIndex() ([]Entry, Index) {
	entries, version := m.gallery.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexBuilt && m.indexVersion == version {
		return entries, m.index
	}
	if m.opts.UseHNSW {
		m.index = NewHNSWIndex(entries, m.opts.Metric)
	} else {
		m.index = NewExactIndex(entries, m.opts.Metric)
	}
	m.indexVersion = version
	m.indexBuilt = true
	return entries, m.index
}

func classify(idx Index, entries []Entry, f Face, tolerance float64) Result {
	res := Result{Name: Unknown, Box: f.Box}
	if len(f.Encoding) == 0 {
		return res
	}
	pos, dist := idx.Nearest(f.Encoding)
	// a miss from the graph is confirmed by a full scan
	if a, ok := idx.(approximate); ok && !(dist < tolerance) {
		pos, dist = a.Exact().Nearest(f.Encoding)
	}
	if pos < 0 || pos >= len(entries) || math.IsInf(dist, 0) {
		return res
	}
	res.Distance = dist
	if dist < tolerance {
		res.Name = entries[pos].Name
	}
	return res
}
