package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/reminder"
)

// ReminderEngine is satisfied by *reminder.Engine.
type ReminderEngine interface {
	Sweep(ctx context.Context, now time.Time) ([]database.Reminder, error)
	Today(ctx context.Context, now time.Time) ([]database.Reminder, error)
	Tomorrow(ctx context.Context, now time.Time) ([]database.Reminder, error)
}

// RemindersHandler handles reminder CRUD and the due-soon check.
type RemindersHandler struct {
	store  database.ReminderWriter
	engine ReminderEngine
	now    func() time.Time
	log    *logger.Logger
}

func NewRemindersHandler(store database.ReminderWriter, engine ReminderEngine, now func() time.Time, log *logger.Logger) *RemindersHandler {
	if now == nil {
		now = time.Now
	}
	return &RemindersHandler{store: store, engine: engine, now: now, log: log}
}

// reminderDTO is the wire form of a reminder. Times use the storage layout.
type reminderDTO struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	DueTime           string  `json:"due_time"`
	Category          string  `json:"category"`
	IsCompleted       bool    `json:"is_completed"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurrencePattern *string `json:"recurrence_pattern,omitempty"`
	LastNotification  *string `json:"last_notification,omitempty"`
}

func toReminderDTO(r database.Reminder) reminderDTO {
	dto := reminderDTO{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		DueTime:           database.FormatTime(r.DueTime),
		Category:          r.Category,
		IsCompleted:       r.IsCompleted,
		IsRecurring:       r.IsRecurring,
		RecurrencePattern: r.RecurrencePattern,
	}
	if r.LastNotification != nil {
		s := database.FormatTime(*r.LastNotification)
		dto.LastNotification = &s
	}
	return dto
}

func toReminderDTOs(list []database.Reminder) []reminderDTO {
	out := make([]reminderDTO, 0, len(list))
	for _, r := range list {
		out = append(out, toReminderDTO(r))
	}
	return out
}

type createReminderRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	DueTime           string  `json:"due_time"`
	Category          string  `json:"category"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurrencePattern *string `json:"recurrence_pattern"`
}

// reminderID parses the {id} URL parameter, writing a 400 on failure.
func reminderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid reminder id")
		return 0, false
	}
	return id, true
}

// List returns incomplete reminders, or all of them with ?all=true.
func (h *RemindersHandler) List(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	list, err := h.store.List(r.Context(), all)
	if err != nil {
		h.log.Error("listing reminders", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get reminders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reminders": toReminderDTOs(list)})
}

// Today returns today's incomplete reminders ordered by due time.
func (h *RemindersHandler) Today(w http.ResponseWriter, r *http.Request) {
	h.dueOn(w, r, h.engine.Today)
}

// Tomorrow returns tomorrow's incomplete reminders ordered by due time.
func (h *RemindersHandler) Tomorrow(w http.ResponseWriter, r *http.Request) {
	h.dueOn(w, r, h.engine.Tomorrow)
}

func (h *RemindersHandler) dueOn(w http.ResponseWriter, r *http.Request, get func(context.Context, time.Time) ([]database.Reminder, error)) {
	list, err := get(r.Context(), h.now())
	if err != nil {
		h.log.Error("getting reminders", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get reminders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reminders": toReminderDTOs(list)})
}

// Get returns one reminder.
func (h *RemindersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}
	rem, err := h.store.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err != nil {
		h.log.Error("getting reminder", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	respondJSON(w, http.StatusOK, toReminderDTO(*rem))
}

// Create stores a reminder. An unparsable due time falls back to now; the
// stored value is echoed so the caller can see what was saved.
func (h *RemindersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	title := strings.TrimSpace(req.Title)
	dueRaw := strings.TrimSpace(req.DueTime)
	if title == "" || dueRaw == "" {
		respondError(w, http.StatusBadRequest, "title and due time are required")
		return
	}

	due, parsed := reminder.NormalizeDueTime(dueRaw, h.now())
	if !parsed {
		h.log.Warn("unparsable due time, using now", "due_time", sanitizeForLog(dueRaw))
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = database.DefaultCategory
	}

	rem := &database.Reminder{
		Title:             title,
		Description:       strings.TrimSpace(req.Description),
		DueTime:           due,
		Category:          category,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
	}
	id, err := h.store.Create(r.Context(), rem)
	if err != nil {
		h.log.Error("creating reminder", "title", sanitizeForLog(title), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to add reminder")
		return
	}
	h.log.Info("reminder added", "id", id, "due_time", database.FormatTime(due))
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":  "Reminder added successfully",
		"id":       id,
		"due_time": database.FormatTime(due),
	})
}

// Complete marks a reminder as done.
func (h *RemindersHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}
	err := h.store.Complete(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err != nil {
		h.log.Error("completing reminder", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to mark reminder as completed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Reminder marked as completed"})
}

// Delete removes a reminder.
func (h *RemindersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}
	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err != nil {
		h.log.Error("deleting reminder", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upcoming runs a sweep now and returns the reminders it notified.
func (h *RemindersHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	due, err := h.engine.Sweep(r.Context(), h.now())
	if errors.Is(err, reminder.ErrSweepInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.log.Error("checking upcoming reminders", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to check upcoming reminders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"upcoming_reminders": toReminderDTOs(due)})
}
