// Package identity holds the enrolled identities used for matching and keeps
// them in sync with their persisted form.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/logger"
)

type Entry = facematch.Entry

var (
	ErrInvalidEntry = errors.New("identity needs a name and an encoding")
	ErrSave         = errors.New("saving identities failed")
)

// Persister stores the whole collection at once.
type Persister interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Store is the in-memory collection. Matching reads snapshots under the
// shared lock; enrollment mutates and saves under the exclusive one.
type Store struct {
	mu        sync.RWMutex
	entries   []Entry
	version   uint64
	persister Persister
	log       *logger.Logger
}

func NewStore(persister Persister, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{persister: persister, log: log}
}

// Load replaces the in-memory collection with the persisted one. Missing or
// unreadable storage leaves the store empty; it is logged, not returned.
func (s *Store) Load(ctx context.Context) int {
	entries, err := s.persister.Load(ctx)
	if err != nil {
		s.log.Warn("could not load enrolled identities, starting empty", "error", err)
		entries = nil
	}

	clean := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e.Name = facematch.CleanName(e.Name)
		if e.Name == "" {
			continue
		}
		clean = append(clean, e)
	}

	s.mu.Lock()
	s.entries = clean
	s.version++
	s.mu.Unlock()

	s.log.Info("loaded enrolled identities", "count", len(clean))
	return len(clean)
}

// Upsert removes every entry with exactly this name and appends the new one.
func (s *Store) Upsert(name string, encoding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(name, encoding)
}

func (s *Store) upsertLocked(name string, encoding []float32) error {
	name = facematch.CleanName(name)
	if name == "" || len(encoding) == 0 {
		return ErrInvalidEntry
	}

	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	enc := make([]float32, len(encoding))
	copy(enc, encoding)
	s.entries = append(kept, Entry{Name: name, Encoding: enc})
	s.version++
	return nil
}

// Save writes the full collection through the persister.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.persister.Save(ctx, s.entries); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// UpsertAndSave runs Upsert then Save under one exclusive lock. A failed save
// keeps the new entry in memory.
func (s *Store) UpsertAndSave(ctx context.Context, name string, encoding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertLocked(name, encoding); err != nil {
		return err
	}
	return s.saveLocked(ctx)
}

// Snapshot implements facematch.Gallery.
func (s *Store) Snapshot() ([]Entry, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, s.version
}

func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
