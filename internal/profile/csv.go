package profile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/logger"
)

var csvHeader = []string{"Name", "Relation", "Age", "Medical_History", "Last_Visit", "Notes"}

// CSVSource keeps people_data.csv in memory and rewrites it on Upsert.
type CSVSource struct {
	path string
	log  *logger.Logger

	mu   sync.RWMutex
	rows []Profile
}

func NewCSVSource(path string, log *logger.Logger) *CSVSource {
	if log == nil {
		log = logger.Nop()
	}
	return &CSVSource{path: path, log: log.With("component", "profiles")}
}

// Load reads the file. A missing file is an empty table.
func (s *CSVSource) Load() error {
	rows, err := readCSV(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
	return nil
}

func readCSV(path string) ([]Profile, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[h] = i
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	rows := make([]Profile, 0, len(records)-1)
	for _, rec := range records[1:] {
		name := facematch.CleanName(get(rec, "Name"))
		if name == "" {
			continue
		}
		rows = append(rows, Profile{
			Name:           name,
			Relation:       get(rec, "Relation"),
			Age:            get(rec, "Age"),
			MedicalHistory: get(rec, "Medical_History"),
			LastVisit:      get(rec, "Last_Visit"),
			Notes:          get(rec, "Notes"),
			Source:         "csv",
		})
	}
	return rows, nil
}

func (s *CSVSource) Lookup(_ context.Context, name string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.rows {
		if facematch.SameName(p.Name, name) {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// All returns a copy of every row.
func (s *CSVSource) All() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Profile(nil), s.rows...)
}

// Upsert drops rows with the same name (case-insensitive), appends p and
// rewrites the file.
func (s *CSVSource) Upsert(_ context.Context, p Profile) error {
	p.Name = facematch.CleanName(p.Name)
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	p.Source = "csv"

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Profile, 0, len(s.rows)+1)
	for _, r := range s.rows {
		if !facematch.SameName(r.Name, p.Name) {
			rows = append(rows, r)
		}
	}
	rows = append(rows, p)

	if err := writeCSV(s.path, rows); err != nil {
		return err
	}
	s.rows = rows
	return nil
}

func writeCSV(path string, rows []Profile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".people-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write(csvHeader)
	for _, r := range rows {
		_ = w.Write([]string{r.Name, r.Relation, r.Age, r.MedicalHistory, r.LastVisit, r.Notes})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Watch reloads the table whenever the file changes on disk, until ctx is
// done. The directory is watched so editors that replace the file are seen.
func (s *CSVSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Load(); err != nil {
				s.log.Warn("reloading profiles failed", "error", err)
				continue
			}
			s.log.Debug("profiles reloaded", "count", len(s.All()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("profile watcher error", "error", err)
		}
	}
}
