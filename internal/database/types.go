package database

import (
	"errors"
	"time"
)

// TimeLayout is how every timestamp is stored: local time, second precision.
// Fixed width makes string order equal chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// DayLayout is the date prefix of TimeLayout.
const DayLayout = "2006-01-02"

// DefaultCategory is used when a reminder is created without one.
const DefaultCategory = "general"

var ErrNotFound = errors.New("not found")

// FormatTime renders t in TimeLayout in the local zone.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// ParseTime parses a TimeLayout string in the local zone.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// Reminder is a persisted reminder. RecurrencePattern is stored but never
// expanded into further occurrences.
type Reminder struct {
	ID                int64
	Title             string
	Description       string
	DueTime           time.Time
	Category          string
	IsCompleted       bool
	IsRecurring       bool
	RecurrencePattern *string
	CreatedAt         time.Time
	LastNotification  *time.Time
}

// KnownPerson is a row of known_people.
type KnownPerson struct {
	ID        int64
	Name      string
	Relation  string
	LastVisit *time.Time
}

// Visit is an entry of the append-only visit history.
type Visit struct {
	ID         int64
	PersonName string
	VisitDate  time.Time
}

// Patient describes the person the assistant cares for.
type Patient struct {
	ID                 int64
	Name               string
	Age                int
	MedicalHistory     string
	LastDoctorVisit    string
	NextMedicationTime string
	FamilyMembers      string
}
