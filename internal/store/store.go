// Package store is the persistence sink: it writes normalized,
// deduplicated batches into the opportunities table. Idempotence is
// enforced by the identity_key uniqueness constraint, not by application
// logic, so concurrent batches cannot race into duplicate rows.
package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"procurepulse/aggregator-service/internal/dedup"
	"procurepulse/aggregator-service/internal/model"
)

const upsertSQL = `
INSERT INTO opportunities (
	identity_key, state, title, solicitation_number, due_date, link,
	agency, source, scraped_at, description, organization_type
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (identity_key) DO UPDATE SET
	title             = EXCLUDED.title,
	due_date          = EXCLUDED.due_date,
	link              = EXCLUDED.link,
	agency            = EXCLUDED.agency,
	description       = EXCLUDED.description,
	organization_type = EXCLUDED.organization_type,
	scraped_at        = EXCLUDED.scraped_at
RETURNING (xmax = 0)`

// Store writes opportunity batches to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertBatch commits one source's records in a single transaction. A new
// identity key inserts a row; a known key updates the mutable fields and
// refreshes scraped_at. On any error the whole batch rolls back — other
// sources' batches are unaffected — and the records will be retried on the
// next scheduled run.
func (s *Store) UpsertBatch(ctx context.Context, source string, opps []*model.Opportunity) (inserted, updated int, err error) {
	if len(opps) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch for %s: %w", source, err)
	}
	defer tx.Rollback(ctx)

	for _, opp := range opps {
		key := dedup.IdentityKey(opp)

		if strings.HasPrefix(key, "h:") {
			s.flagSuspectMerge(ctx, tx, key, opp)
		}

		var solNum *string
		if opp.SolicitationNumber != "" {
			solNum = &opp.SolicitationNumber
		}

		var wasInsert bool
		err := tx.QueryRow(ctx, upsertSQL,
			key, opp.State, opp.Title, solNum, opp.DueDate, opp.Link,
			opp.Agency, opp.Source, opp.ScrapedAt, opp.Description, opp.OrganizationType,
		).Scan(&wasInsert)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert %s (key %s): %w", source, key, err)
		}

		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit batch for %s: %w", source, err)
	}
	return inserted, updated, nil
}

// flagSuspectMerge logs when a fallback-keyed record is about to update a
// row whose link points elsewhere. Two distinct postings sharing title and
// agency text hash to the same key; the sources give us nothing to tell
// them apart, so this is surfaced for operators rather than resolved.
func (s *Store) flagSuspectMerge(ctx context.Context, tx pgx.Tx, key string, opp *model.Opportunity) {
	var existingLink *string
	err := tx.QueryRow(ctx,
		`SELECT link FROM opportunities WHERE identity_key = $1`, key,
	).Scan(&existingLink)
	if err != nil {
		return // no existing row, or transient read issue — nothing to flag
	}

	if existingLink != nil && opp.Link != nil && *existingLink != *opp.Link {
		log.Printf("[store] possible false merge on fallback key %s: stored link %q, incoming %q (title %q)",
			key, *existingLink, *opp.Link, opp.Title)
	}
}
