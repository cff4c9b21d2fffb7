package chat

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/profile"
)

// Greeting returns the salutation for an hour of the day.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 17:
		return "Good afternoon"
	case hour >= 17 && hour < 21:
		return "Good evening"
	default:
		return "Good night"
	}
}

func formatReminders(day string, reminders []database.Reminder) string {
	if len(reminders) == 0 {
		return fmt.Sprintf("You don't have any reminders scheduled for %s.", day)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are your reminders for %s:\n\n", day)
	for i, r := range reminders {
		fmt.Fprintf(&b, "%d. %s at %s\n", i+1, r.Title, r.DueTime.Format("03:04 PM"))
		if desc := strings.TrimSpace(r.Description); desc != "" {
			fmt.Fprintf(&b, "   Description: %s\n", desc)
		}
		if r.Category != "" && !strings.EqualFold(r.Category, database.DefaultCategory) {
			fmt.Fprintf(&b, "   Category: %s\n", r.Category)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func formatPatient(p *database.Patient) string {
	var details []string
	if p.Age > 0 {
		details = append(details, fmt.Sprintf("You are %d years old", p.Age))
	}
	if p.MedicalHistory != "" {
		details = append(details, "Your medical history includes "+p.MedicalHistory)
	}
	if p.LastDoctorVisit != "" {
		details = append(details, "Your last doctor visit was on "+p.LastDoctorVisit)
	}
	if p.NextMedicationTime != "" {
		details = append(details, "Your next medication is scheduled for "+p.NextMedicationTime)
	}
	if p.FamilyMembers != "" {
		details = append(details, "Your family members include "+p.FamilyMembers)
	}
	out := fmt.Sprintf("Your name is %s.", p.Name)
	if len(details) > 0 {
		out += " " + strings.Join(details, ". ") + "."
	}
	return out
}

func formatRoutine(day string, items []RoutineItem) string {
	if len(items) == 0 {
		return fmt.Sprintf("I don't have a routine for %s.", day)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your routine for today (%s):\n", day)
	for _, it := range items {
		fmt.Fprintf(&b, "- %s: %s - %s\n", it.Time, it.Activity, it.Details)
	}
	return strings.TrimSpace(b.String())
}

func formatVisitor(name string, p *profile.Profile) string {
	out := fmt.Sprintf("I can see %s in front of the camera.", name)
	if p == nil {
		return out
	}
	if p.Relation != "" {
		out += fmt.Sprintf(" They are your %s.", p.Relation)
	}
	if p.Notes != "" {
		out += " " + p.Notes
	}
	if p.Source == "database" && p.LastVisit != "" {
		out += fmt.Sprintf(" Their last visit was on %s.", p.LastVisit)
	}
	return out
}
