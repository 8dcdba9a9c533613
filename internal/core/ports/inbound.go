package ports

import (
	"context"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

// EmailProcessor is the inbound contract for per-email orchestration.
type EmailProcessor interface {
	ProcessEmail(ctx context.Context, email domain.InboundEmail) (domain.ProcessOutcome, error)
}

// UpdateNotifier emits at most one downstream notification per
// fingerprint within the marker window.
type UpdateNotifier interface {
	PublishOnce(ctx context.Context, fingerprint string, entry domain.LedgerEntry) (bool, error)
}
