package identity

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// blob is the on-disk layout: parallel name and encoding lists.
type blob struct {
	Names     []string
	Encodings [][]float32
}

// FilePersister keeps the collection in a single gob file.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load returns an empty collection when the file does not exist.
func (p *FilePersister) Load(_ context.Context) ([]Entry, error) {
	f, err := os.Open(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p.path, err)
	}
	defer f.Close()

	var b blob
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p.path, err)
	}
	if len(b.Names) != len(b.Encodings) {
		return nil, fmt.Errorf("decoding %s: %d names but %d encodings", p.path, len(b.Names), len(b.Encodings))
	}

	entries := make([]Entry, len(b.Names))
	for i := range b.Names {
		entries[i] = Entry{Name: b.Names[i], Encoding: b.Encodings[i]}
	}
	return entries, nil
}

// Save rewrites the whole file. It writes a sibling temp file and renames it
// over the old one.
func (p *FilePersister) Save(_ context.Context, entries []Entry) error {
	b := blob{
		Names:     make([]string, len(entries)),
		Encodings: make([][]float32, len(entries)),
	}
	for i, e := range entries {
		b.Names[i] = e.Name
		b.Encodings[i] = e.Encoding
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".encodings-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(b); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding identities: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replacing %s: %w", p.path, err)
	}
	return nil
}
