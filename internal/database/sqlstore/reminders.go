package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/carecam/internal/database"
)

const reminderColumns = `id, title, description, due_time, category, is_completed, is_recurring,
	recurrence_pattern, created_at, last_notification`

// ReminderRepository provides reminder storage.
type ReminderRepository struct {
	pool *Pool
}

func NewReminderRepository(pool *Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*database.Reminder, error) {
	var (
		r                   database.Reminder
		dueTime, createdAt  string
		completed, recurs   int
		pattern, lastNotify sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &dueTime, &r.Category, &completed, &recurs,
		&pattern, &createdAt, &lastNotify); err != nil {
		return nil, err
	}

	var err error
	if r.DueTime, err = database.ParseTime(dueTime); err != nil {
		return nil, fmt.Errorf("reminder %d: bad due_time %q: %w", r.ID, dueTime, err)
	}
	// created_at is informational, a malformed value is not fatal
	if t, err := database.ParseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	r.IsCompleted = completed != 0
	r.IsRecurring = recurs != 0
	if pattern.Valid {
		p := pattern.String
		r.RecurrencePattern = &p
	}
	if lastNotify.Valid {
		if t, err := database.ParseTime(lastNotify.String); err == nil {
			r.LastNotification = &t
		}
	}
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]database.Reminder, error) {
	defer rows.Close()
	var out []database.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowString() string {
	return database.FormatTime(time.Now())
}

// Create inserts a reminder. An empty category becomes "general".
func (r *ReminderRepository) Create(ctx context.Context, rem *database.Reminder) (int64, error) {
	title := strings.TrimSpace(rem.Title)
	if title == "" {
		return 0, errors.New("reminder title is required")
	}
	if rem.DueTime.IsZero() {
		return 0, errors.New("reminder due time is required")
	}
	category := strings.TrimSpace(rem.Category)
	if category == "" {
		category = database.DefaultCategory
	}
	createdAt := rem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var pattern any
	if rem.RecurrencePattern != nil {
		pattern = *rem.RecurrencePattern
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reminders (title, description, due_time, category, is_completed, is_recurring,
			recurrence_pattern, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		RETURNING id`,
		title, rem.Description, database.FormatTime(rem.DueTime), category,
		boolInt(rem.IsRecurring), pattern, database.FormatTime(createdAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}

	rem.ID = id
	rem.Title = title
	rem.Category = category
	rem.CreatedAt = createdAt
	return id, nil
}

func (r *ReminderRepository) Get(ctx context.Context, id int64) (*database.Reminder, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+reminderColumns+" FROM reminders WHERE id = ?", id)
	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return rem, nil
}

func (r *ReminderRepository) List(ctx context.Context, includeCompleted bool) ([]database.Reminder, error) {
	query := "SELECT " + reminderColumns + " FROM reminders"
	if !includeCompleted {
		query += " WHERE is_completed = 0"
	}
	query += " ORDER BY due_time, id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanReminders(rows)
}

// DueOn matches on the date prefix of the stored due time.
func (r *ReminderRepository) DueOn(ctx context.Context, day time.Time) ([]database.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE substr(due_time, 1, 10) = ? AND is_completed = 0
		ORDER BY due_time, id`,
		day.Local().Format(database.DayLayout),
	)
	if err != nil {
		return nil, err
	}
	return scanReminders(rows)
}

const needingNotificationQuery = `
	SELECT ` + reminderColumns + `
	FROM reminders
	WHERE due_time >= ? AND due_time < ?
	  AND (last_notification IS NULL OR last_notification < ?)
	  AND is_completed = 0
	ORDER BY due_time, id`

func windowArgs(now time.Time, lookahead, debounce time.Duration) []any {
	return []any{
		database.FormatTime(now),
		database.FormatTime(now.Add(lookahead)),
		database.FormatTime(now.Add(-debounce)),
	}
}

func (r *ReminderRepository) NeedingNotification(ctx context.Context, now time.Time, lookahead, debounce time.Duration) ([]database.Reminder, error) {
	rows, err := r.pool.Query(ctx, needingNotificationQuery, windowArgs(now, lookahead, debounce)...)
	if err != nil {
		return nil, err
	}
	return scanReminders(rows)
}

const markNotifiedQuery = `
	UPDATE reminders SET last_notification = ?
	WHERE id IN (%s) AND (last_notification IS NULL OR last_notification < ?)`

func markNotifiedArgs(ids []int64, stamp string) []any {
	args := make([]any, 0, len(ids)+2)
	args = append(args, stamp)
	for _, id := range ids {
		args = append(args, id)
	}
	return append(args, stamp)
}

// MarkNotified only ever moves last_notification forward.
func (r *ReminderRepository) MarkNotified(ctx context.Context, ids []int64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.pool.Exec(ctx, fmt.Sprintf(markNotifiedQuery, placeholders(len(ids))),
		markNotifiedArgs(ids, database.FormatTime(now))...)
	if err != nil {
		return 0, fmt.Errorf("mark reminders notified: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClaimDue selects the reminders needing notification and stamps them with
// now inside one transaction.
func (r *ReminderRepository) ClaimDue(ctx context.Context, now time.Time, lookahead, debounce time.Duration) ([]database.Reminder, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(ctx, needingNotificationQuery, windowArgs(now, lookahead, debounce)...)
	if err != nil {
		return nil, fmt.Errorf("select due reminders: %w", err)
	}
	due, err := scanReminders(rows)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, tx.Commit()
	}

	stamp := database.FormatTime(now)
	ids := make([]int64, len(due))
	for i, rem := range due {
		ids[i] = rem.ID
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(markNotifiedQuery, placeholders(len(ids))), markNotifiedArgs(ids, stamp)...); err != nil {
		return nil, fmt.Errorf("stamp due reminders: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	stamped, _ := database.ParseTime(stamp)
	for i := range due {
		due[i].LastNotification = &stamped
	}
	return due, nil
}

func (r *ReminderRepository) Complete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "UPDATE reminders SET is_completed = 1 WHERE id = ?", id)
}

func (r *ReminderRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "DELETE FROM reminders WHERE id = ?", id)
}

func (r *ReminderRepository) execOne(ctx context.Context, query string, id int64) error {
	res, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
