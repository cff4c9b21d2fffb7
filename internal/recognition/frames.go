package recognition

import (
	"context"
	"sync"
)

// Broadcaster holds the latest encoded frame. Any number of readers can wait
// for a newer one; slow readers skip frames instead of queueing them.
type Broadcaster struct {
	mu      sync.Mutex
	frame   []byte
	seq     uint64
	changed chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{changed: make(chan struct{})}
}

// Publish replaces the latest frame and wakes every waiting reader.
func (b *Broadcaster) Publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = frame
	b.seq++
	close(b.changed)
	b.changed = make(chan struct{})
}

// Latest returns the newest frame and its sequence number, nil before the
// first Publish.
func (b *Broadcaster) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame, b.seq
}

// Next blocks until a frame newer than after is available.
func (b *Broadcaster) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.seq > after {
			frame, seq := b.frame, b.seq
			b.mu.Unlock()
			return frame, seq, nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-ch:
		}
	}
}
