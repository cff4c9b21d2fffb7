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

// PeopleRepository stores known people and their visit history.
type PeopleRepository struct {
	pool *Pool
}

func NewPeopleRepository(pool *Pool) *PeopleRepository {
	return &PeopleRepository{pool: pool}
}

func scanPerson(row rowScanner) (*database.KnownPerson, error) {
	var (
		p         database.KnownPerson
		lastVisit sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Relation, &lastVisit); err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		if t, err := database.ParseTime(lastVisit.String); err == nil {
			p.LastVisit = &t
		}
	}
	return &p, nil
}

func (r *PeopleRepository) GetPerson(ctx context.Context, name string) (*database.KnownPerson, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, relation, last_visit FROM known_people
		WHERE LOWER(name) = LOWER(?)
		ORDER BY id DESC LIMIT 1`, strings.TrimSpace(name))
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %q: %w", name, err)
	}
	return p, nil
}

func (r *PeopleRepository) ListPeople(ctx context.Context) ([]database.KnownPerson, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, relation, last_visit FROM known_people ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.KnownPerson
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return out, nil
}

func (r *PeopleRepository) Visits(ctx context.Context, name string, limit int) ([]database.Visit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_name, visit_date FROM visit_history
		WHERE LOWER(person_name) = LOWER(?)
		ORDER BY visit_date DESC, id DESC
		LIMIT ?`, strings.TrimSpace(name), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.Visit
	for rows.Next() {
		var (
			v    database.Visit
			date string
		)
		if err := rows.Scan(&v.ID, &v.PersonName, &date); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		if v.VisitDate, err = database.ParseTime(date); err != nil {
			return nil, fmt.Errorf("visit %d: bad visit_date %q: %w", v.ID, date, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return out, nil
}

// RecordVisit appends to visit_history and moves known_people.last_visit
// forward in one transaction. Unknown people are created with relation.
func (r *PeopleRepository) RecordVisit(ctx context.Context, name, relation string, at time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("visitor name is required")
	}
	stamp := database.FormatTime(at)

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(ctx, `
		UPDATE known_people SET last_visit = ?
		WHERE LOWER(name) = LOWER(?) AND (last_visit IS NULL OR last_visit < ?)`, stamp, name, stamp)
	if err != nil {
		return fmt.Errorf("update last visit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM known_people WHERE LOWER(name) = LOWER(?)", name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check known person: %w", err)
		}
		if exists == 0 {
			if _, err := tx.Exec(ctx, "INSERT INTO known_people (name, relation, last_visit) VALUES (?, ?, ?)",
				name, relation, stamp); err != nil {
				return fmt.Errorf("insert known person: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, "INSERT INTO visit_history (person_name, visit_date) VALUES (?, ?)", name, stamp); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReplacePerson removes every case-insensitive match of p.Name, then inserts p.
// last_visit is taken from visit_history, so p.LastVisit is ignored.
func (r *PeopleRepository) ReplacePerson(ctx context.Context, p database.KnownPerson) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.New("person name is required")
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ctx, "DELETE FROM known_people WHERE LOWER(name) = LOWER(?)", name); err != nil {
		return fmt.Errorf("delete known person: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO known_people (name, relation, last_visit)
		VALUES (?, ?, (SELECT MAX(visit_date) FROM visit_history WHERE LOWER(person_name) = LOWER(?)))`,
		name, p.Relation, name); err != nil {
		return fmt.Errorf("insert known person: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
