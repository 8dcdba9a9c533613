// Package postgres implements the shared claim store on a relational
// table. All mutations are single-statement conditional writes, so
// concurrent workers on different processes never race; expiry is
// encoded in the rows themselves and needs no reaper.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082802)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS work_claims (
	key TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_claims_expires_at ON work_claims(expires_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// TryClaim first serves a live cache entry, then attempts the atomic
// claim. The conditional upsert only overwrites rows whose TTL has
// lapsed, so a live claim or a cache entry written between the two
// statements is never stolen; the caller just observes "denied" and a
// later pass reads the cache.
func (s *Store) TryClaim(ctx context.Context, key string, claimTTL time.Duration) (domain.ClaimResult, error) {
	var state, result string
	err := s.db.QueryRowContext(ctx, `
SELECT state, result
FROM work_claims
WHERE key = $1 AND expires_at > now()
`, key).Scan(&state, &result)
	switch {
	case err == nil:
		if state == "done" {
			return domain.ClaimResult{Cached: true, Result: result}, nil
		}
		return domain.ClaimResult{}, nil
	case errors.Is(err, sql.ErrNoRows):
		// No live entry; fall through to the claim attempt.
	default:
		return domain.ClaimResult{}, fmt.Errorf("read claim state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO work_claims (key, state, result, expires_at)
VALUES ($1, 'claimed', '', now() + make_interval(secs => $2))
ON CONFLICT (key) DO UPDATE
SET state = 'claimed', result = '', expires_at = now() + make_interval(secs => $2)
WHERE work_claims.expires_at <= now()
`, key, claimTTL.Seconds())
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("acquire claim: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("acquire claim rows affected: %w", err)
	}
	return domain.ClaimResult{Claimed: rows == 1}, nil
}

// Complete is unconditional and idempotent: it is safe to call even if
// the claim already expired and was taken over by another worker, in
// which case the last completion wins.
func (s *Store) Complete(ctx context.Context, key, result string, cacheTTL time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO work_claims (key, state, result, expires_at)
VALUES ($1, 'done', $2, now() + make_interval(secs => $3))
ON CONFLICT (key) DO UPDATE
SET state = 'done', result = EXCLUDED.result, expires_at = EXCLUDED.expires_at
`, key, result, cacheTTL.Seconds())
	if err != nil {
		return fmt.Errorf("complete claim: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM work_claims
WHERE key = $1 AND state = 'claimed'
`, key)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
