// Package profile answers "who is this person to the patient" from the CSV
// profile table first and the known_people table second.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/carecam/internal/database"
)

var ErrNotFound = errors.New("no details found")

// Profile is what the UI and the chat assistant show about a person.
// Fields a source does not know are empty.
type Profile struct {
	Name           string `json:"Name"`
	Relation       string `json:"Relation"`
	Age            string `json:"Age,omitempty"`
	MedicalHistory string `json:"Medical_History,omitempty"`
	LastVisit      string `json:"Last_Visit,omitempty"`
	Notes          string `json:"Notes,omitempty"`
	Source         string `json:"-"`
}

// Source looks people up by name, case-insensitively.
type Source interface {
	Lookup(ctx context.Context, name string) (*Profile, error)
}

// Writer stores a profile, replacing any existing one with the same name.
type Writer interface {
	Upsert(ctx context.Context, p Profile) error
}

// Chain consults sources in order and returns the first hit.
type Chain []Source

func (c Chain) Lookup(ctx context.Context, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	var errs []error
	for _, src := range c {
		p, err := src.Lookup(ctx, name)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
	}
	return nil, ErrNotFound
}

// DBSource serves profiles from known_people.
type DBSource struct {
	people database.PeopleReader
}

func NewDBSource(people database.PeopleReader) *DBSource {
	return &DBSource{people: people}
}

func (s *DBSource) Lookup(ctx context.Context, name string) (*Profile, error) {
	p, err := s.people.GetPerson(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	prof := &Profile{Name: p.Name, Relation: p.Relation, Source: "database"}
	if p.LastVisit != nil {
		prof.LastVisit = database.FormatTime(*p.LastVisit)
	}
	return prof, nil
}

// Upsert replaces the known_people row. last_visit stays whatever the visit
// log says; enrolling someone is not a visit.
func (s *DBSource) Upsert(ctx context.Context, p Profile) error {
	w, ok := s.people.(database.PeopleWriter)
	if !ok {
		return errors.New("people store is read-only")
	}
	relation := p.Relation
	if relation == "" {
		relation = "Unknown"
	}
	return w.ReplacePerson(ctx, database.KnownPerson{Name: p.Name, Relation: relation})
}
