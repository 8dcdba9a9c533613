package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
	"github.com/earlybird-ai/finledger/internal/fingerprint"
)

type IngestConfig struct {
	ClaimTTL time.Duration
	CacheTTL time.Duration
}

func (c IngestConfig) normalize() IngestConfig {
	out := c
	if out.ClaimTTL <= 0 {
		// Must exceed the worst-case OCR + classification round trip.
		out.ClaimTTL = 5 * time.Minute
	}
	if out.CacheTTL <= 0 {
		// Must exceed the mail source's redelivery window.
		out.CacheTTL = 24 * time.Hour
	}
	return out
}

// IngestEmailUseCase orchestrates one unit of work: claim, attachment
// fan-out, classification, idempotent persistence, publish-once. The
// claim store is the cross-process authority; the local in-flight set
// only absorbs double submissions faster than a store round trip.
type IngestEmailUseCase struct {
	claims     ports.ClaimStore
	fanout     *AttachmentFanOut
	classifier ports.Classifier
	repo       ports.LedgerRepository
	notifier   ports.UpdateNotifier
	logger     *slog.Logger
	cfg        IngestConfig

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewIngestEmailUseCase(
	claims ports.ClaimStore,
	fanout *AttachmentFanOut,
	classifier ports.Classifier,
	repo ports.LedgerRepository,
	notifier ports.UpdateNotifier,
	logger *slog.Logger,
	cfg IngestConfig,
) *IngestEmailUseCase {
	return &IngestEmailUseCase{
		claims:     claims,
		fanout:     fanout,
		classifier: classifier,
		repo:       repo,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg.normalize(),
		inFlight:   make(map[string]struct{}),
	}
}

func (uc *IngestEmailUseCase) ProcessEmail(ctx context.Context, email domain.InboundEmail) (domain.ProcessOutcome, error) {
	fp := fingerprint.Email(email.Subject, email.Body)

	if !uc.markInFlight(fp) {
		return domain.OutcomeSkippedInFlight, nil
	}
	defer uc.clearInFlight(fp)

	key := emailClaimPrefix + fp
	res, err := uc.claims.TryClaim(ctx, key, uc.cfg.ClaimTTL)
	if err != nil {
		return "", fmt.Errorf("claim email %s: %w", shortFP(fp), err)
	}
	if res.Cached {
		uc.logger.Info("email_already_processed", "fingerprint", shortFP(fp), "subject", email.Subject)
		return domain.OutcomeSkippedDone, nil
	}
	if !res.Claimed {
		uc.logger.Info("email_in_flight_elsewhere", "fingerprint", shortFP(fp), "subject", email.Subject)
		return domain.OutcomeSkippedInFlight, nil
	}

	entry, err := uc.runPipeline(ctx, fp, email)
	if err != nil {
		// Failures are never cached; releasing the claim lets a later
		// pass retry the whole unit.
		if relErr := uc.claims.Release(ctx, key); relErr != nil {
			uc.logger.Warn("email_claim_release_failed", "fingerprint", shortFP(fp), "error", relErr)
		}
		return "", err
	}

	if err := uc.claims.Complete(ctx, key, "", uc.cfg.CacheTTL); err != nil {
		// The entry is persisted and published; if the cache write is
		// lost the claim expires and a retry lands on the upsert.
		uc.logger.Warn("email_cache_write_failed", "fingerprint", shortFP(fp), "error", err)
	}

	uc.logger.Info("email_processed",
		"fingerprint", shortFP(fp),
		"vendor", entry.Vendor,
		"amount", entry.Amount,
		"currency", entry.Currency,
		"label", entry.Label,
	)
	return domain.OutcomeProcessed, nil
}

func (uc *IngestEmailUseCase) runPipeline(ctx context.Context, fp string, email domain.InboundEmail) (domain.LedgerEntry, error) {
	ocrText := uc.fanout.Process(ctx, email.Attachments)
	combined := buildClassifierInput(email, ocrText)

	entry, err := uc.classifier.Classify(ctx, combined, email.Date)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("classify email %s: %w", shortFP(fp), err)
	}
	entry.Fingerprint = fp

	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("classifier output for %s: %w", shortFP(fp), err)
	}

	if err := uc.repo.Upsert(ctx, entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("persist entry %s: %w", shortFP(fp), err)
	}

	if _, err := uc.notifier.PublishOnce(ctx, fp, entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("publish entry %s: %w", shortFP(fp), err)
	}
	return entry, nil
}

func (uc *IngestEmailUseCase) markInFlight(fp string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, ok := uc.inFlight[fp]; ok {
		return false
	}
	uc.inFlight[fp] = struct{}{}
	return true
}

func (uc *IngestEmailUseCase) clearInFlight(fp string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.inFlight, fp)
}

func buildClassifierInput(email domain.InboundEmail, ocrText string) string {
	var b strings.Builder
	b.WriteString(email.Subject)
	b.WriteString("\n")
	b.WriteString(email.Body)
	if ocrText != "" {
		b.WriteString("\n\nAttachments OCR:\n")
		b.WriteString(ocrText)
	}
	return b.String()
}

func shortFP(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}
