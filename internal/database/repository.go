package database

import (
	"context"
	"time"
)

// ReminderReader provides read-only access to reminders
type ReminderReader interface {
	// Get returns ErrNotFound for an unknown id
	Get(ctx context.Context, id int64) (*Reminder, error)
	// List returns reminders ordered by due time
	List(ctx context.Context, includeCompleted bool) ([]Reminder, error)
	// DueOn returns the incomplete reminders whose due date is day, ordered by due time
	DueOn(ctx context.Context, day time.Time) ([]Reminder, error)
	// NeedingNotification returns incomplete reminders due in [now, now+lookahead)
	// that were never notified or last notified before now-debounce
	NeedingNotification(ctx context.Context, now time.Time, lookahead, debounce time.Duration) ([]Reminder, error)
}

// ReminderWriter provides write access to reminders
type ReminderWriter interface {
	ReminderReader

	// Create stores r and returns the new id. Title and due time are required.
	Create(ctx context.Context, r *Reminder) (int64, error)
	// MarkNotified stamps last_notification=now, never moving it backwards
	MarkNotified(ctx context.Context, ids []int64, now time.Time) (int64, error)
	// ClaimDue selects and stamps reminders needing notification in one transaction
	ClaimDue(ctx context.Context, now time.Time, lookahead, debounce time.Duration) ([]Reminder, error)
	// Complete marks a reminder done, ErrNotFound for an unknown id
	Complete(ctx context.Context, id int64) error
	// Delete removes a reminder, ErrNotFound for an unknown id
	Delete(ctx context.Context, id int64) error
}

// PeopleReader provides read-only access to known people and visits
type PeopleReader interface {
	// GetPerson looks a person up case-insensitively, ErrNotFound if absent
	GetPerson(ctx context.Context, name string) (*KnownPerson, error)
	ListPeople(ctx context.Context) ([]KnownPerson, error)
	// Visits returns the newest visits of a person first
	Visits(ctx context.Context, name string, limit int) ([]Visit, error)
}

// PeopleWriter provides write access to known people and visits
type PeopleWriter interface {
	PeopleReader

	// RecordVisit appends a visit and updates last_visit in one transaction,
	// creating the person with relation if needed
	RecordVisit(ctx context.Context, name, relation string, at time.Time) error
	// ReplacePerson deletes every case-insensitive match of p.Name and inserts p.
	// last_visit always equals the newest visit_history entry for the name
	ReplacePerson(ctx context.Context, p KnownPerson) error
}

// PatientReader provides access to the patient record
type PatientReader interface {
	GetPatient(ctx context.Context) (*Patient, error)
}
