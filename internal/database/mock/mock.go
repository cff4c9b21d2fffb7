// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/carecam/internal/database"
)

// MockReminderStore is an in-memory database.ReminderWriter
type MockReminderStore struct {
	mu        sync.RWMutex
	reminders map[int64]*database.Reminder
	nextID    int64

	// Error injection
	CreateError   error
	GetError      error
	ListError     error
	DueOnError    error
	ClaimDueError error
	CompleteError error
	DeleteError   error
}

// NewMockReminderStore creates a new mock reminder store
func NewMockReminderStore() *MockReminderStore {
	return &MockReminderStore{reminders: make(map[int64]*database.Reminder)}
}

func (m *MockReminderStore) Create(_ context.Context, r *database.Reminder) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *r
	cp.ID = m.nextID
	if cp.Category == "" {
		cp.Category = database.DefaultCategory
	}
	m.reminders[cp.ID] = &cp
	r.ID = cp.ID
	r.Category = cp.Category
	return cp.ID, nil
}

func (m *MockReminderStore) Get(_ context.Context, id int64) (*database.Reminder, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReminderStore) filter(keep func(*database.Reminder) bool) []database.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Reminder
	for _, r := range m.reminders {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueTime.Equal(out[j].DueTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueTime.Before(out[j].DueTime)
	})
	return out
}

func (m *MockReminderStore) List(_ context.Context, includeCompleted bool) ([]database.Reminder, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.filter(func(r *database.Reminder) bool { return includeCompleted || !r.IsCompleted }), nil
}

func (m *MockReminderStore) DueOn(_ context.Context, day time.Time) ([]database.Reminder, error) {
	if m.DueOnError != nil {
		return nil, m.DueOnError
	}
	want := day.Local().Format(database.DayLayout)
	return m.filter(func(r *database.Reminder) bool {
		return !r.IsCompleted && r.DueTime.Local().Format(database.DayLayout) == want
	}), nil
}

func needs(r *database.Reminder, now time.Time, lookahead, debounce time.Duration) bool {
	if r.IsCompleted || r.DueTime.Before(now) || !r.DueTime.Before(now.Add(lookahead)) {
		return false
	}
	return r.LastNotification == nil || r.LastNotification.Before(now.Add(-debounce))
}

func (m *MockReminderStore) NeedingNotification(_ context.Context, now time.Time, lookahead, debounce time.Duration) ([]database.Reminder, error) {
	return m.filter(func(r *database.Reminder) bool { return needs(r, now, lookahead, debounce) }), nil
}

func (m *MockReminderStore) MarkNotified(_ context.Context, ids []int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		r, ok := m.reminders[id]
		if !ok || (r.LastNotification != nil && !r.LastNotification.Before(now)) {
			continue
		}
		t := now
		r.LastNotification = &t
		n++
	}
	return n, nil
}

func (m *MockReminderStore) ClaimDue(ctx context.Context, now time.Time, lookahead, debounce time.Duration) ([]database.Reminder, error) {
	if m.ClaimDueError != nil {
		return nil, m.ClaimDueError
	}
	due, _ := m.NeedingNotification(ctx, now, lookahead, debounce)
	ids := make([]int64, len(due))
	for i := range due {
		ids[i] = due[i].ID
		t := now
		due[i].LastNotification = &t
	}
	_, _ = m.MarkNotified(ctx, ids, now)
	return due, nil
}

func (m *MockReminderStore) Complete(_ context.Context, id int64) error {
	if m.CompleteError != nil {
		return m.CompleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return database.ErrNotFound
	}
	r.IsCompleted = true
	return nil
}

func (m *MockReminderStore) Delete(_ context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

// MockPeopleStore is an in-memory database.PeopleWriter
type MockPeopleStore struct {
	mu     sync.RWMutex
	people []database.KnownPerson
	visits []database.Visit

	// Error injection
	GetPersonError     error
	RecordVisitError   error
	ReplacePersonError error
}

// NewMockPeopleStore creates a new mock people store
func NewMockPeopleStore() *MockPeopleStore {
	return &MockPeopleStore{}
}

func (m *MockPeopleStore) GetPerson(_ context.Context, name string) (*database.KnownPerson, error) {
	if m.GetPersonError != nil {
		return nil, m.GetPersonError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.people) - 1; i >= 0; i-- {
		if strings.EqualFold(m.people[i].Name, strings.TrimSpace(name)) {
			p := m.people[i]
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MockPeopleStore) ListPeople(_ context.Context) ([]database.KnownPerson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.KnownPerson(nil), m.people...), nil
}

func (m *MockPeopleStore) Visits(_ context.Context, name string, limit int) ([]database.Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Visit
	for i := len(m.visits) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if strings.EqualFold(m.visits[i].PersonName, name) {
			out = append(out, m.visits[i])
		}
	}
	return out, nil
}

func (m *MockPeopleStore) RecordVisit(_ context.Context, name, relation string, at time.Time) error {
	if m.RecordVisitError != nil {
		return m.RecordVisitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits = append(m.visits, database.Visit{ID: int64(len(m.visits) + 1), PersonName: name, VisitDate: at})
	for i := range m.people {
		if strings.EqualFold(m.people[i].Name, name) {
			if m.people[i].LastVisit == nil || m.people[i].LastVisit.Before(at) {
				t := at
				m.people[i].LastVisit = &t
			}
			return nil
		}
	}
	t := at
	m.people = append(m.people, database.KnownPerson{ID: int64(len(m.people) + 1), Name: name, Relation: relation, LastVisit: &t})
	return nil
}

func (m *MockPeopleStore) ReplacePerson(_ context.Context, p database.KnownPerson) error {
	if m.ReplacePersonError != nil {
		return m.ReplacePersonError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.people[:0]
	for _, existing := range m.people {
		if !strings.EqualFold(existing.Name, p.Name) {
			kept = append(kept, existing)
		}
	}
	p.LastVisit = nil
	for _, v := range m.visits {
		if strings.EqualFold(v.PersonName, p.Name) && (p.LastVisit == nil || p.LastVisit.Before(v.VisitDate)) {
			t := v.VisitDate
			p.LastVisit = &t
		}
	}
	m.people = append(kept, p)
	return nil
}

// VisitCount returns how many visits were recorded for name
func (m *MockPeopleStore) VisitCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, v := range m.visits {
		if v.PersonName == name {
			n++
		}
	}
	return n
}

// MockPatientStore returns a fixed patient
type MockPatientStore struct {
	Patient *database.Patient
	Error   error
}

func (m *MockPatientStore) GetPatient(_ context.Context) (*database.Patient, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	if m.Patient == nil {
		return nil, database.ErrNotFound
	}
	p := *m.Patient
	return &p, nil
}

var (
	_ database.ReminderWriter = (*MockReminderStore)(nil)
	_ database.PeopleWriter   = (*MockPeopleStore)(nil)
	_ database.PatientReader  = (*MockPatientStore)(nil)
)
