package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/carecam/internal/facematch"
)

// EncodingRepository persists enrolled face encodings in a pgvector column.
// It implements identity.Persister and requires PostgreSQL.
type EncodingRepository struct {
	pool *Pool
}

func NewEncodingRepository(pool *Pool) (*EncodingRepository, error) {
	if pool.Dialect() != Postgres {
		return nil, errors.New("pgvector encodings need a postgres database")
	}
	return &EncodingRepository{pool: pool}, nil
}

// EnsureSchema creates the vector extension and table. It is not part of the
// regular migrations so plain PostgreSQL installs keep working.
func (r *EncodingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS face_encodings (
			position INTEGER PRIMARY KEY,
			name     TEXT NOT NULL,
			encoding vector NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create face_encodings table: %w", err)
	}
	return nil
}

// Load returns the encodings in their stored order.
func (r *EncodingRepository) Load(ctx context.Context) ([]facematch.Entry, error) {
	rows, err := r.pool.Query(ctx, "SELECT name, encoding FROM face_encodings ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []facematch.Entry
	for rows.Next() {
		var (
			name string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		out = append(out, facematch.Entry{Name: name, Encoding: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return out, nil
}

// Save replaces the whole table inside one transaction.
func (r *EncodingRepository) Save(ctx context.Context, entries []facematch.Entry) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ctx, "DELETE FROM face_encodings"); err != nil {
		return fmt.Errorf("delete encodings: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.Exec(ctx, "INSERT INTO face_encodings (position, name, encoding) VALUES (?, ?, ?)",
			i, e.Name, pgvector.NewVector(e.Encoding)); err != nil {
			return fmt.Errorf("insert encoding for %q: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
