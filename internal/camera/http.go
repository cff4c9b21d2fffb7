package camera

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/kozaktomas/carecam/internal/facematch"
)

// SnapshotSource fetches one JPEG per Next from a still-image URL, the
// common "/snapshot.jpg" endpoint of IP cameras.
type SnapshotSource struct {
	url      string
	client   *http.Client
	failures failureCounter
}

func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{
		url:      url,
		client:   &http.Client{},
		failures: failureCounter{max: DefaultMaxFailures},
	}
}

func (s *SnapshotSource) Next(ctx context.Context) (image.Image, error) {
	img, err := s.fetch(ctx)
	return img, s.failures.observe(err)
}

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot error (status %d)", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return facematch.DecodeImage(data)
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// MJPEGSource reads a multipart/x-mixed-replace stream and yields one frame
// per part. The stream is reopened after a read error.
type MJPEGSource struct {
	url      string
	client   *http.Client
	failures failureCounter

	mu     sync.Mutex
	body   io.ReadCloser
	reader *multipart.Reader
}

func NewMJPEGSource(url string) *MJPEGSource {
	return &MJPEGSource{
		url:      url,
		client:   &http.Client{},
		failures: failureCounter{max: DefaultMaxFailures},
	}
}

func (m *MJPEGSource) Next(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, err := m.next(ctx)
	if err != nil {
		m.closeStream()
	}
	return img, m.failures.observe(err)
}

func (m *MJPEGSource) next(ctx context.Context) (image.Image, error) {
	if m.reader == nil {
		if err := m.open(ctx); err != nil {
			return nil, err
		}
	}

	// the stream outlives a single ctx, so cancellation closes the body
	stop := context.AfterFunc(ctx, func() { m.body.Close() })
	defer stop()

	part, err := m.reader.NextPart()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading stream part: %w", err)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return facematch.DecodeImage(data)
}

func (m *MJPEGSource) open(ctx context.Context) error {
	// the request must not be tied to ctx, which only covers one frame
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, m.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream error (status %d)", resp.StatusCode)
	}

	boundary, err := streamBoundary(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return err
	}
	m.body = resp.Body
	m.reader = multipart.NewReader(bufio.NewReader(resp.Body), boundary)
	return nil
}

func streamBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("parsing content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("not a multipart stream: %s", mediaType)
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		return "", fmt.Errorf("stream has no boundary")
	}
	return boundary, nil
}

func (m *MJPEGSource) closeStream() {
	if m.body != nil {
		m.body.Close()
	}
	m.body = nil
	m.reader = nil
}

func (m *MJPEGSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeStream()
	m.client.CloseIdleConnections()
	return nil
}
