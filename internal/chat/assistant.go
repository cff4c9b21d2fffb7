// Package chat answers the patient's messages. Known questions are handled
// locally from the database, the diary, the routines file and the camera;
// anything else goes to the conversational model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/carecam/internal/ai"
	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/profile"
	"github.com/kozaktomas/carecam/internal/recognition"
)

// Intents reported with every reply.
const (
	IntentMemoryOpen  = "memory_open"
	IntentMemoryClose = "memory_close"
	IntentMemoryShow  = "memory_show"
	IntentMemoryEntry = "memory_entry"
	IntentGreeting    = "greeting"
	IntentName        = "name"
	IntentAboutMe     = "about_me"
	IntentReminders   = "reminders"
	IntentRoutine     = "routine"
	IntentVisitor     = "visitor"
	IntentTime        = "time"
	IntentFallback    = "fallback"
)

const troubleReply = "I'm having trouble processing your request. Please try again."

// Reminders is satisfied by *reminder.Engine.
type Reminders interface {
	Today(ctx context.Context, now time.Time) ([]database.Reminder, error)
	Tomorrow(ctx context.Context, now time.Time) ([]database.Reminder, error)
}

// Watcher is satisfied by *recognition.Service.
type Watcher interface {
	Current() recognition.Identity
}

type Reply struct {
	Response string `json:"response"`
	Intent   string `json:"intent"`
}

type Deps struct {
	Diary        *Diary
	Patient      database.PatientReader
	Reminders    Reminders
	RoutinesFile string
	Watcher      Watcher
	Profiles     profile.Source
	// LLM answers everything else; nil disables the fallback.
	LLM ai.Provider
	Now func() time.Time
}

type Assistant struct {
	deps Deps
	log  *logger.Logger
}

func NewAssistant(deps Deps, log *logger.Logger) *Assistant {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Assistant{deps: deps, log: log.With("component", "chat")}
}

// Reply answers one message. It never fails: internal errors are logged and
// turned into an apology the patient can read.
func (a *Assistant) Reply(ctx context.Context, message string) Reply {
	msg := strings.ToLower(strings.TrimSpace(message))
	now := a.deps.Now()

	if r, ok := a.diaryCommand(msg, now); ok {
		return r
	}

	patient := a.patient(ctx)

	switch msg {
	case "hi", "hello", "hey":
		return Reply{fmt.Sprintf("%s, %s! How can I help you today?", Greeting(now.Hour()), patient.Name), IntentGreeting}
	case "tell my name", "what is my name", "who am i":
		return Reply{fmt.Sprintf("Your name is %s.", patient.Name), IntentName}
	}

	switch {
	case strings.Contains(msg, "tell") && (strings.Contains(msg, "about me") || strings.Contains(msg, "about myself")):
		return Reply{formatPatient(patient), IntentAboutMe}
	case containsAny(msg, "reminder", "schedule", "todo", "task"):
		return a.reminders(ctx, msg, now)
	case strings.Contains(msg, "daily routine") || strings.Contains(msg, "my routine"):
		return a.routine(now)
	case strings.Contains(msg, "who is") && containsAny(msg, "camera", "front"):
		return a.visitor(ctx)
	case strings.Contains(msg, "time") && containsAny(msg, "what", "tell", "current"):
		return Reply{fmt.Sprintf("The current time is %s.", now.Format("03:04 PM")), IntentTime}
	}

	return a.fallback(ctx, msg)
}

func (a *Assistant) diaryCommand(msg string, now time.Time) (Reply, bool) {
	d := a.deps.Diary
	if d == nil {
		return Reply{}, false
	}
	switch msg {
	case "open memory":
		a.logErr("starting diary", d.SetRecording(true))
		return Reply{"Memory recording started. Write your diary entry. Type 'close memory' when you're done.", IntentMemoryOpen}, true
	case "close memory":
		a.logErr("stopping diary", d.SetRecording(false))
		return Reply{"Memory saved.", IntentMemoryClose}, true
	case "show memory":
		entries := d.Entries()
		if len(entries) == 0 {
			return Reply{"No memories saved yet.", IntentMemoryShow}, true
		}
		return Reply{"Your memories:\n" + strings.Join(entries, "\n"), IntentMemoryShow}, true
	}
	if d.Recording() {
		a.logErr("saving diary entry", d.Append(fmt.Sprintf("%s: %s", database.FormatTime(now), msg)))
		return Reply{"Entry saved. Continue writing or type 'close memory' when done.", IntentMemoryEntry}, true
	}
	return Reply{}, false
}

func (a *Assistant) patient(ctx context.Context) *database.Patient {
	if a.deps.Patient != nil {
		p, err := a.deps.Patient.GetPatient(ctx)
		if err == nil {
			return p
		}
		if !errors.Is(err, database.ErrNotFound) {
			a.log.Warn("loading patient record failed", "error", err)
		}
	}
	return &database.Patient{Name: "Unknown"}
}

func (a *Assistant) reminders(ctx context.Context, msg string, now time.Time) Reply {
	if a.deps.Reminders == nil {
		return Reply{"I'm having trouble fetching your reminders. Please try again.", IntentReminders}
	}
	day, fetch := "today", a.deps.Reminders.Today
	if containsAny(msg, "tomorrow", "next day") {
		day, fetch = "tomorrow", a.deps.Reminders.Tomorrow
	}
	list, err := fetch(ctx, now)
	if err != nil {
		a.log.Error("loading reminders failed", "error", err)
		return Reply{"I'm having trouble fetching your reminders. Please try again.", IntentReminders}
	}
	return Reply{formatReminders(day, list), IntentReminders}
}

func (a *Assistant) routine(now time.Time) Reply {
	routines, err := LoadRoutines(a.deps.RoutinesFile)
	if err != nil {
		a.log.Warn("loading daily routine failed", "error", err)
		return Reply{"I couldn't load your daily routine. Please check the system files.", IntentRoutine}
	}
	day := now.Weekday().String()
	return Reply{formatRoutine(day, routines[day]), IntentRoutine}
}

func (a *Assistant) visitor(ctx context.Context) Reply {
	if a.deps.Watcher == nil {
		return Reply{"I don't recognize anyone in front of the camera right now.", IntentVisitor}
	}
	cur := a.deps.Watcher.Current()
	if !cur.Known() {
		return Reply{"I don't recognize anyone in front of the camera right now.", IntentVisitor}
	}
	var p *profile.Profile
	if a.deps.Profiles != nil {
		found, err := a.deps.Profiles.Lookup(ctx, cur.Name)
		if err == nil {
			p = found
		} else if !errors.Is(err, profile.ErrNotFound) {
			a.log.Warn("profile lookup failed", "name", cur.Name, "error", err)
		}
	}
	return Reply{formatVisitor(cur.Name, p), IntentVisitor}
}

func (a *Assistant) fallback(ctx context.Context, msg string) Reply {
	if a.deps.LLM == nil || msg == "" {
		return Reply{troubleReply, IntentFallback}
	}
	text, err := ai.Ask(ctx, a.deps.LLM, msg)
	if err != nil {
		a.log.Error("chat model failed", "provider", a.deps.LLM.Name(), "error", err)
		return Reply{troubleReply, IntentFallback}
	}
	return Reply{text, IntentFallback}
}

func (a *Assistant) logErr(what string, err error) {
	if err != nil {
		a.log.Error(what+" failed", "error", err)
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
