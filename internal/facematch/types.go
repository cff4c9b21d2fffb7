// Package facematch turns a camera frame into per-face recognition results:
// downsample, detect, then nearest-neighbor search over the enrolled identities.
package facematch

import "context"

// Unknown is the name reported for a face that matches no enrolled identity.
const Unknown = "unknown"

// Entry is one enrolled identity as seen by the matcher.
type Entry struct {
	Name     string
	Encoding []float32
}

// Face is a single detection: where it is and its encoding.
// Encoding is empty when the detector found a face but could not encode it.
type Face struct {
	Box      BBox
	Encoding []float32
	Score    float64
}

// Result is the outcome of matching one detected face.
type Result struct {
	Name     string  `json:"name"`
	Box      BBox    `json:"box"`
	Distance float64 `json:"distance"`
}

// Known reports whether the face was matched to an enrolled identity.
func (r Result) Known() bool {
	return r.Name != Unknown
}

// Detector finds faces in an encoded image and computes their encodings.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]Face, error)
}

// Gallery provides the enrolled identities. Version changes whenever the
// contents change, so callers can cache derived structures.
type Gallery interface {
	Snapshot() ([]Entry, uint64)
}
