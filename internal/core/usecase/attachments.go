package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
	"github.com/earlybird-ai/finledger/internal/fingerprint"
)

// Claim-store key namespaces. Attachment and email fingerprints share
// one store instance but never one key space; publish markers get their
// own prefix as well.
const (
	emailClaimPrefix      = "email:"
	attachmentClaimPrefix = "attachment:"
	publishMarkerPrefix   = "published:"
)

type FanOutConfig struct {
	Workers      int
	ClaimTTL     time.Duration
	CacheTTL     time.Duration
	PollInterval time.Duration
	PollAttempts int
}

func (c FanOutConfig) normalize() FanOutConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 3
	}
	if out.ClaimTTL <= 0 {
		out.ClaimTTL = 2 * time.Minute
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 24 * time.Hour
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	if out.PollAttempts <= 0 {
		out.PollAttempts = 60
	}
	return out
}

// AttachmentFanOut drives OCR for every attachment of one unit of work
// concurrently and joins the recognized texts. Attachment content is
// deduplicated through the claim store, so a receipt attached to two
// emails is recognized once.
type AttachmentFanOut struct {
	claims ports.ClaimStore
	ocr    ports.OCRService
	logger *slog.Logger
	cfg    FanOutConfig
}

func NewAttachmentFanOut(claims ports.ClaimStore, ocr ports.OCRService, logger *slog.Logger, cfg FanOutConfig) *AttachmentFanOut {
	return &AttachmentFanOut{
		claims: claims,
		ocr:    ocr,
		logger: logger,
		cfg:    cfg.normalize(),
	}
}

// Process dispatches all attachments to a bounded pool, waits for every
// outcome and returns the non-empty texts joined in submission order.
// A single attachment's failure never aborts the others; it degrades to
// an empty contribution.
func (p *AttachmentFanOut) Process(ctx context.Context, attachments []domain.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	results := make([]string, len(attachments))
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup
	for i, att := range attachments {
		wg.Add(1)
		go func(i int, att domain.Attachment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.processOne(ctx, att)
		}(i, att)
	}
	wg.Wait()

	nonEmpty := make([]string, 0, len(results))
	for _, text := range results {
		if text != "" {
			nonEmpty = append(nonEmpty, text)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func (p *AttachmentFanOut) processOne(ctx context.Context, att domain.Attachment) string {
	key := attachmentClaimPrefix + fingerprint.Attachment(att.Content)

	res, err := p.claims.TryClaim(ctx, key, p.cfg.ClaimTTL)
	if err != nil {
		p.logger.Warn("attachment_claim_failed", "filename", att.Filename, "error", err)
		return ""
	}
	if res.Cached {
		p.logger.Debug("attachment_ocr_cache_hit", "filename", att.Filename)
		return res.Result
	}
	if !res.Claimed {
		// Another worker owns it; its result lands in the cache for a
		// later pass.
		p.logger.Debug("attachment_claim_denied", "filename", att.Filename)
		return ""
	}

	taskID, err := p.ocr.Submit(ctx, att.Content, att.Filename)
	if err != nil {
		p.logger.Warn("ocr_submit_failed", "filename", att.Filename, "error", err)
		p.release(ctx, key, att.Filename)
		return ""
	}

	text, ok := p.awaitTask(ctx, taskID, att.Filename)
	if !ok {
		p.release(ctx, key, att.Filename)
		return ""
	}

	if err := p.claims.Complete(ctx, key, text, p.cfg.CacheTTL); err != nil {
		// The text is still good; the claim lapses on its own TTL.
		p.logger.Warn("attachment_cache_write_failed", "filename", att.Filename, "error", err)
	}
	return text
}

// awaitTask polls with a fixed interval and a fixed attempt budget.
// Exhausting the budget is a timeout, distinct from an explicit failed
// status, but both degrade the same way.
func (p *AttachmentFanOut) awaitTask(ctx context.Context, taskID, filename string) (string, bool) {
	for attempt := 0; attempt < p.cfg.PollAttempts; attempt++ {
		task, err := p.ocr.Poll(ctx, taskID)
		if err != nil {
			p.logger.Warn("ocr_poll_failed", "task_id", taskID, "filename", filename, "error", err)
			return "", false
		}
		switch task.Status {
		case domain.TaskCompleted:
			return task.Text, true
		case domain.TaskFailed:
			p.logger.Warn("ocr_task_reported_failure", "task_id", taskID, "filename", filename, "task_error", task.Error)
			return "", false
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(p.cfg.PollInterval):
		}
	}
	p.logger.Warn("ocr_poll_budget_exhausted", "task_id", taskID, "filename", filename, "attempts", p.cfg.PollAttempts)
	return "", false
}

func (p *AttachmentFanOut) release(ctx context.Context, key, filename string) {
	if err := p.claims.Release(ctx, key); err != nil {
		p.logger.Warn("attachment_claim_release_failed", "filename", filename, "error", err)
	}
}
