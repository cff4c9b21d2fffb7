// Package camera provides frame sources for the recognition loop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/carecam/internal/config"
)

var (
	// ErrUnavailable means the camera cannot deliver frames any more. The
	// recognition loop stops when it sees it.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrTimeout means a single read took too long. It is transient.
	ErrTimeout = errors.New("camera read timed out")
)

// Source delivers frames. Next is called from a single goroutine.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// DefaultMaxFailures is how many consecutive failed reads a network source
// tolerates before reporting ErrUnavailable.
const DefaultMaxFailures = 30

// New builds the source selected by cfg.Mode, wrapped with the read timeout.
func New(cfg *config.CameraConfig) (Source, error) {
	var src Source
	switch cfg.Mode {
	case "", "snapshot":
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: CAMERA_URL is required for snapshot mode", ErrUnavailable)
		}
		src = NewSnapshotSource(cfg.URL)
	case "mjpeg":
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: CAMERA_URL is required for mjpeg mode", ErrUnavailable)
		}
		src = NewMJPEGSource(cfg.URL)
	case "dir":
		d, err := NewDirSource(cfg.Dir, cfg.Interval)
		if err != nil {
			return nil, err
		}
		src = d
	default:
		return nil, fmt.Errorf("unknown camera mode %q", cfg.Mode)
	}
	return WithTimeout(src, cfg.ReadTimeout), nil
}

type timeoutSource struct {
	src     Source
	timeout time.Duration
}

// WithTimeout bounds every Next call. A read that does not finish in time
// returns ErrTimeout; its result, if it ever arrives, is dropped.
func WithTimeout(src Source, timeout time.Duration) Source {
	if timeout <= 0 {
		return src
	}
	return &timeoutSource{src: src, timeout: timeout}
}

type frameResult struct {
	img image.Image
	err error
}

func (t *timeoutSource) Next(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ch := make(chan frameResult, 1)
	go func() {
		img, err := t.src.Next(ctx)
		ch <- frameResult{img, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && !errors.Is(r.err, ErrUnavailable) {
			return nil, ErrTimeout
		}
		return r.img, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (t *timeoutSource) Close() error {
	return t.src.Close()
}

// failureCounter turns a run of transient errors into ErrUnavailable.
type failureCounter struct {
	max   int
	count int
}

func (f *failureCounter) observe(err error) error {
	if err == nil {
		f.count = 0
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	f.count++
	if f.max > 0 && f.count >= f.max {
		return fmt.Errorf("%w: %d consecutive failures: %w", ErrUnavailable, f.count, err)
	}
	return err
}

type brokenSource struct {
	err error
}

// Broken returns a source whose every read fails with ErrUnavailable wrapping
// err. It stands in for a camera that could not be configured, so the
// recognition loop stops and reports why.
func Broken(err error) Source {
	return brokenSource{err: err}
}

func (b brokenSource) Next(context.Context) (image.Image, error) {
	if errors.Is(b.err, ErrUnavailable) {
		return nil, b.err
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, b.err)
}

func (b brokenSource) Close() error { return nil }
