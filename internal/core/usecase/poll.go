package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
)

type PollConfig struct {
	Interval time.Duration
	Workers  int
}

func (c PollConfig) normalize() PollConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = 10 * time.Second
	}
	if out.Workers <= 0 {
		out.Workers = 5
	}
	return out
}

// MailboxPollUseCase drives the ingestion loop: fetch a batch from the
// mail source, process the emails through a bounded pool, repeat on a
// fixed cadence until the context is cancelled. Redelivered emails are
// harmless; the pipeline's claim gate skips them.
type MailboxPollUseCase struct {
	source    ports.MailSource
	processor ports.EmailProcessor
	logger    *slog.Logger
	cfg       PollConfig
}

func NewMailboxPollUseCase(source ports.MailSource, processor ports.EmailProcessor, logger *slog.Logger, cfg PollConfig) *MailboxPollUseCase {
	return &MailboxPollUseCase{
		source:    source,
		processor: processor,
		logger:    logger,
		cfg:       cfg.normalize(),
	}
}

func (uc *MailboxPollUseCase) Run(ctx context.Context) error {
	ticker := time.NewTicker(uc.cfg.Interval)
	defer ticker.Stop()

	uc.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			uc.pollOnce(ctx)
		}
	}
}

func (uc *MailboxPollUseCase) pollOnce(ctx context.Context) {
	emails, err := uc.source.Fetch(ctx)
	if err != nil {
		uc.logger.Error("mail_fetch_failed", "error", err)
		return
	}
	if len(emails) == 0 {
		uc.logger.Debug("no_new_emails")
		return
	}
	uc.logger.Info("processing_new_emails", "count", len(emails))

	sem := make(chan struct{}, uc.cfg.Workers)
	var wg sync.WaitGroup
	for _, email := range emails {
		wg.Add(1)
		go func(email domain.InboundEmail) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, err := uc.processor.ProcessEmail(ctx, email)
			if err != nil {
				uc.logger.Error("email_processing_failed", "subject", email.Subject, "error", err)
				return
			}
			if outcome != domain.OutcomeProcessed {
				uc.logger.Debug("email_skipped", "subject", email.Subject, "outcome", string(outcome))
			}
		}(email)
	}
	wg.Wait()
}
