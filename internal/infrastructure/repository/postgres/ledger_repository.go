package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ledger (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	text TEXT NOT NULL,
	date TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	currency TEXT NOT NULL,
	vendor TEXT NOT NULL,
	type TEXT NOT NULL,
	reference_id TEXT NOT NULL,
	label TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
CREATE INDEX IF NOT EXISTS idx_ledger_label ON ledger(label);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert writes at most one row per fingerprint. Re-running the same
// logical transaction overwrites every non-key field in a single
// statement, so concurrent retries cannot duplicate or interleave rows.
func (r *LedgerRepository) Upsert(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ledger (fingerprint, text, date, amount, currency, vendor, type, reference_id, label)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (fingerprint) DO UPDATE
SET text = EXCLUDED.text,
	date = EXCLUDED.date,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	vendor = EXCLUDED.vendor,
	type = EXCLUDED.type,
	reference_id = EXCLUDED.reference_id,
	label = EXCLUDED.label
`,
		entry.Fingerprint, entry.Text, entry.Date, entry.Amount, entry.Currency,
		entry.Vendor, string(entry.Type), entry.ReferenceID, entry.Label,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (r *LedgerRepository) ListRecent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT fingerprint, text, date, amount, currency, vendor, type, reference_id, label, created_at
FROM ledger
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var ttype string
		if err := rows.Scan(
			&entry.Fingerprint, &entry.Text, &entry.Date, &entry.Amount, &entry.Currency,
			&entry.Vendor, &ttype, &entry.ReferenceID, &entry.Label, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Type = domain.TransactionType(ttype)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// GetByFingerprint reads one entry back, mainly for operational checks.
func (r *LedgerRepository) GetByFingerprint(ctx context.Context, fp string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT fingerprint, text, date, amount, currency, vendor, type, reference_id, label, created_at
FROM ledger
WHERE fingerprint = $1
`, fp)

	var entry domain.LedgerEntry
	var ttype string
	err := row.Scan(
		&entry.Fingerprint, &entry.Text, &entry.Date, &entry.Amount, &entry.Currency,
		&entry.Vendor, &ttype, &entry.ReferenceID, &entry.Label, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.Type = domain.TransactionType(ttype)
	return &entry, nil
}
