package recognition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type lastSeenRecord struct {
	LastSeen  string `json:"last_seen"`
	UpdatedAt string `json:"updated_at"`
}

// WriteLastSeen replaces the "last seen" record at path with id.
func WriteLastSeen(path string, id Identity) error {
	data, err := json.MarshalIndent(lastSeenRecord{
		LastSeen:  id.Name,
		UpdatedAt: id.UpdatedAt.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// ReadLastSeen returns the name stored at path. A missing or corrupt file
// reads as empty.
func ReadLastSeen(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var rec lastSeenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ""
	}
	return rec.LastSeen
}
