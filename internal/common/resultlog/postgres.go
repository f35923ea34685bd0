package resultlog

import (
	"context"
	"database/sql"
	"fmt"

	"league-signup/internal/models"
)

const (
	createOutcomesTable = `CREATE TABLE IF NOT EXISTS signup_outcomes (
	email        TEXT PRIMARY KEY,
	completed_at TIMESTAMPTZ NOT NULL,
	source_index INTEGER NOT NULL,
	worker       TEXT NOT NULL,
	run_id       TEXT NOT NULL
)`
	insertOutcome = `INSERT INTO signup_outcomes (email, completed_at, source_index, worker, run_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (email) DO NOTHING`
)

// PostgresSink records outcomes as rows. Each append is a single INSERT, which the
// database makes atomic; the driver connection pool serialises nothing else.
type PostgresSink struct {
	db    *sql.DB
	runID string
}

func NewPostgresSink(db *sql.DB, runID string) *PostgresSink {
	return &PostgresSink{db: db, runID: runID}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) EnsureHeader(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createOutcomesTable); err != nil {
		return fmt.Errorf("create signup_outcomes: %w", err)
	}
	return nil
}

func (s *PostgresSink) AppendOutcome(ctx context.Context, o models.SignupOutcome) error {
	_, err := s.db.ExecContext(ctx, insertOutcome, o.Email, o.Timestamp.UTC(), o.SourceIndex, o.WorkerIdentity, s.runID)
	if err != nil {
		return fmt.Errorf("insert outcome for %s: %w", o.Email, err)
	}
	return nil
}

// Close leaves the pool open; it belongs to the caller.
func (s *PostgresSink) Close() error { return nil }
