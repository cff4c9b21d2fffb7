// Package reminder runs the periodic due-reminder sweep and answers
// "what is due today/tomorrow".
package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/logger"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultLookahead = 30 * time.Minute
	DefaultDebounce  = 15 * time.Minute
)

// ErrSweepInProgress is returned by Sweep when another sweep is running.
var ErrSweepInProgress = errors.New("reminder sweep already in progress")

type Options struct {
	Interval  time.Duration
	Lookahead time.Duration
	Debounce  time.Duration
	// Notify receives every non-empty batch of reminders a sweep stamped.
	Notify func(ctx context.Context, due []database.Reminder)
	Now    func() time.Time
}

// Engine owns last_notification: it is the only writer of that column.
type Engine struct {
	store database.ReminderWriter
	opts  Options
	log   *logger.Logger

	sweepMu sync.Mutex

	mu        sync.RWMutex
	lastDue   []database.Reminder
	lastSweep time.Time
}

func NewEngine(store database.ReminderWriter, opts Options, log *logger.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{store: store, opts: opts, log: log.With("component", "reminders")}
}

// Start sweeps once immediately and then every Interval until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	e.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweepAndLog(ctx)
		}
	}
}

func (e *Engine) sweepAndLog(ctx context.Context) {
	due, err := e.Sweep(ctx, e.opts.Now())
	switch {
	case errors.Is(err, ErrSweepInProgress):
		e.log.Debug("skipping sweep, previous one still running")
	case err != nil:
		e.log.Error("reminder sweep failed", "error", err)
	case len(due) > 0:
		e.log.Info("reminders due", "count", len(due))
	}
}

// Sweep selects the reminders due within the lookahead window that were not
// notified within the debounce period, stamps them with now and returns them.
// Concurrent calls do not queue: the loser gets ErrSweepInProgress.
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]database.Reminder, error) {
	if !e.sweepMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer e.sweepMu.Unlock()

	due, err := e.store.ClaimDue(ctx, now, e.opts.Lookahead, e.opts.Debounce)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.lastDue = due
	e.lastSweep = now
	e.mu.Unlock()

	if len(due) > 0 && e.opts.Notify != nil {
		e.opts.Notify(ctx, due)
	}
	return due, nil
}

// LastSweep returns the reminders stamped by the most recent sweep and when
// it ran. The zero time means no sweep has completed yet.
func (e *Engine) LastSweep() ([]database.Reminder, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]database.Reminder(nil), e.lastDue...), e.lastSweep
}

func (e *Engine) Today(ctx context.Context, now time.Time) ([]database.Reminder, error) {
	return e.store.DueOn(ctx, now)
}

func (e *Engine) Tomorrow(ctx context.Context, now time.Time) ([]database.Reminder, error) {
	return e.store.DueOn(ctx, now.AddDate(0, 0, 1))
}

// dueTimeLayouts are the accepted inputs, stored form first.
var dueTimeLayouts = []string{database.TimeLayout, "2006-01-02T15:04"}

// NormalizeDueTime parses a user supplied due time. Input in neither accepted
// layout falls back to now; ok reports whether parsing succeeded.
func NormalizeDueTime(s string, now time.Time) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dueTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return parsed, true
		}
	}
	return now.Truncate(time.Second), false
}
