// Package db provides database connection helpers.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. The UNIQUE constraint on identity_key is
// what makes the upsert race-safe: concurrent writers hitting the same key
// serialize at the constraint instead of creating duplicate rows.
const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                  BIGSERIAL PRIMARY KEY,
	identity_key        TEXT NOT NULL UNIQUE,
	state               CHAR(2) NOT NULL,
	title               TEXT NOT NULL,
	solicitation_number TEXT,
	due_date            DATE,
	link                TEXT,
	agency              TEXT,
	source              TEXT NOT NULL,
	scraped_at          TIMESTAMPTZ NOT NULL,
	description         TEXT,
	organization_type   TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_opportunities_state ON opportunities (state);
CREATE INDEX IF NOT EXISTS idx_opportunities_due_date ON opportunities (due_date);
`

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the opportunities table and its indexes if absent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
