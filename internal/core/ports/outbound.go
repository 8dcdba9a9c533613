package ports

import (
	"context"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

// ClaimStore is the shared coordination primitive keyed by fingerprint.
// At most one non-cached claim is granted per key at any instant across
// all workers sharing the store; an unreleased claim becomes reclaimable
// after claimTTL.
type ClaimStore interface {
	TryClaim(ctx context.Context, key string, claimTTL time.Duration) (domain.ClaimResult, error)
	Complete(ctx context.Context, key, result string, cacheTTL time.Duration) error
	Release(ctx context.Context, key string) error
}

// MailSource yields raw units of work. The protocol behind it is opaque.
type MailSource interface {
	Fetch(ctx context.Context) ([]domain.InboundEmail, error)
}

// OCRService decouples OCR submission from completion. Submit must not
// block beyond registering the task; Poll returns ErrTaskNotFound for
// identifiers that were never issued or have been evicted.
type OCRService interface {
	Submit(ctx context.Context, content []byte, filename string) (string, error)
	Poll(ctx context.Context, taskID string) (domain.OCRTask, error)
}

// OCREngine is the opaque recognition capability behind the tracker.
type OCREngine interface {
	Recognize(ctx context.Context, content []byte, filename string) (string, error)
}

// Classifier turns free text into a structured ledger entry. Its output
// is untrusted until LedgerEntry.Validate passes.
type Classifier interface {
	Classify(ctx context.Context, text, hintDate string) (domain.LedgerEntry, error)
}

// LedgerRepository persists entries keyed by fingerprint. Upsert is a
// single atomic insert-or-overwrite; retries never produce a second row.
type LedgerRepository interface {
	Upsert(ctx context.Context, entry domain.LedgerEntry) error
}

// NotificationPublisher pushes update payloads to subscribers. Delivery
// is at-least-once from the transport's perspective; dedup is the
// caller's job.
type NotificationPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
