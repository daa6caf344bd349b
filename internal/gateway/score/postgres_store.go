package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver, registered for database/sql
)

// PostgresStore backs the "direct" provider with a Postgres table of
// principal scores. Grounded on the OCX backend's cmd/server/main.go, which
// already imports lib/pq for its own *sql.DB wiring.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB. The gateway does not
// own connection lifecycle — the caller opens it with sql.Open("postgres",
// dsn) and is responsible for closing it on shutdown.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the scores table if it does not already exist.
// Safe to call on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS principal_scores (
			principal_id TEXT PRIMARY KEY,
			score        INTEGER NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure principal_scores schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScore(ctx context.Context, principalID string) (int, bool, error) {
	var score int
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM principal_scores WHERE principal_id = $1`,
		principalID,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("principal_scores lookup failed: %w", err)
	}
	return score, true, nil
}

// UpsertScore writes (or overwrites) a principal's score. Used by
// operational tooling and tests; the gateway's request path is read-only.
func (s *PostgresStore) UpsertScore(ctx context.Context, principalID string, scoreValue int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principal_scores (principal_id, score, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (principal_id) DO UPDATE SET score = EXCLUDED.score, updated_at = now()
	`, principalID, scoreValue)
	if err != nil {
		return fmt.Errorf("principal_scores upsert failed: %w", err)
	}
	return nil
}
