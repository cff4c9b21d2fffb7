package enrollment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kozaktomas/carecam/internal/facematch"
)

var (
	ErrNoFrame       = errors.New("no camera frame available")
	ErrImageNotFound = errors.New("image not found")
)

// FrameSource is satisfied by *recognition.Service. Captures reuse the frame
// the recognition loop already read, so the camera has a single reader.
type FrameSource interface {
	LatestFrame() (image.Image, bool)
}

// Capturer implements the two-step flow: Capture stores a frame and returns
// its path, EnrollCapture turns that file into an enrollment.
type Capturer struct {
	frames FrameSource
	dir    string
}

func NewCapturer(frames FrameSource, dir string) *Capturer {
	return &Capturer{frames: frames, dir: dir}
}

// Capture writes the latest frame to <dir>/capture_<uuid>.jpg.
func (c *Capturer) Capture(_ context.Context) (string, error) {
	frame, ok := c.frames.LatestFrame()
	if !ok {
		return "", ErrNoFrame
	}
	data, err := facematch.EncodeJPEG(frame)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", c.dir, err)
	}
	path := filepath.Join(c.dir, "capture_"+uuid.NewString()+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	return path, nil
}

// Resolve maps a path returned by Capture back to a file inside the capture
// directory. Anything outside it is ErrImageNotFound.
func (c *Capturer) Resolve(path string) (string, error) {
	base, err := filepath.Abs(c.dir)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	return target, nil
}

// EnrollCapture enrolls req with the captured image at path. The capture is
// removed once it has been looked at, whatever the outcome.
func (c *Capturer) EnrollCapture(ctx context.Context, p *Pipeline, path string, req Request) (*Result, error) {
	if facematch.CleanName(req.Name) == "" {
		return nil, ErrNameRequired
	}
	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageNotFound, err)
	}
	defer os.Remove(target)

	req.Image = data
	return p.Enroll(ctx, req)
}
