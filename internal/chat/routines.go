package chat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutineItem is one activity of a day.
type RoutineItem struct {
	Time     string `yaml:"time" json:"time"`
	Activity string `yaml:"activity" json:"activity"`
	Details  string `yaml:"details" json:"details"`
}

// LoadRoutines reads the routines file, keyed by English weekday name.
// JSON is valid YAML, so both formats are accepted.
func LoadRoutines(path string) (map[string][]RoutineItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routines: %w", err)
	}
	var routines map[string][]RoutineItem
	if err := yaml.Unmarshal(data, &routines); err != nil {
		return nil, fmt.Errorf("parsing routines: %w", err)
	}
	return routines, nil
}
