package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type diaryFile struct {
	Memories    []string `json:"memories"`
	IsRecording bool     `json:"is_recording"`
}

// Diary is the patient's memory journal. The file is the source of truth
// and is read on every call; a corrupt file reads as an empty diary.
type Diary struct {
	path string
	mu   sync.Mutex
}

func NewDiary(path string) *Diary {
	return &Diary{path: path}
}

func (d *Diary) load() diaryFile {
	var f diaryFile
	data, err := os.ReadFile(d.path)
	if err != nil {
		return diaryFile{Memories: []string{}}
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return diaryFile{Memories: []string{}}
	}
	if f.Memories == nil {
		f.Memories = []string{}
	}
	return f
}

func (d *Diary) save(f diaryFile) error {
	data, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing diary: %w", err)
	}
	return os.Rename(tmp, d.path)
}

// SetRecording starts or stops recording entries.
func (d *Diary) SetRecording(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.load()
	f.IsRecording = on
	return d.save(f)
}

func (d *Diary) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load().IsRecording
}

func (d *Diary) Append(entry string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.load()
	f.Memories = append(f.Memories, entry)
	return d.save(f)
}

func (d *Diary) Entries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load().Memories
}
