package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/carecam/internal/facematch"
)

// DirSource replays the images of a directory in name order, looping
// forever. It is meant for demos and tests without a camera.
type DirSource struct {
	mu       sync.Mutex
	files    []string
	pos      int
	interval time.Duration
}

// NewDirSource lists the JPEG and PNG files of dir. An empty or missing
// directory is ErrUnavailable.
func NewDirSource(dir string, interval time.Duration) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnavailable, dir)
	}
	sort.Strings(files)
	return &DirSource{files: files, interval: interval}, nil
}

func (d *DirSource) Next(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interval > 0 && d.pos > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.interval):
		}
	}
	path := d.files[d.pos%len(d.files)]
	d.pos++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return facematch.DecodeImage(data)
}

func (d *DirSource) Close() error {
	return nil
}
