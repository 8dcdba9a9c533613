// Package bootstrap wires the pipeline: shared claim store and ledger
// repository on Postgres, OCR tracking over the pdftext engine, the
// chat-completions classifier, and NATS for update notifications and
// mirrored logs.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/earlybird-ai/finledger/internal/config"
	"github.com/earlybird-ai/finledger/internal/core/ports"
	"github.com/earlybird-ai/finledger/internal/core/usecase"
	claimspg "github.com/earlybird-ai/finledger/internal/infrastructure/claims/postgres"
	"github.com/earlybird-ai/finledger/internal/infrastructure/classifier/openrouter"
	"github.com/earlybird-ai/finledger/internal/infrastructure/mail/maildrop"
	natspub "github.com/earlybird-ai/finledger/internal/infrastructure/notify/nats"
	"github.com/earlybird-ai/finledger/internal/infrastructure/ocr"
	"github.com/earlybird-ai/finledger/internal/infrastructure/ocr/pdftext"
	"github.com/earlybird-ai/finledger/internal/infrastructure/repository/postgres"
	"github.com/earlybird-ai/finledger/internal/infrastructure/resilience"
	"github.com/earlybird-ai/finledger/internal/observability/logging"
	"github.com/earlybird-ai/finledger/internal/observability/metrics"
)

const serviceName = "ingestd"

type App struct {
	Config config.Config
	Logger *slog.Logger

	DB        *sql.DB
	Publisher *natspub.Publisher
	Metrics   *metrics.PipelineMetrics

	Ledger    ports.LedgerRepository
	Processor ports.EmailProcessor
	PollUC    *usecase.MailboxPollUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	baseLogger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	executor := resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(baseLogger))

	publisher, err := natspub.NewWithOptions(cfg.NATSURL, natspub.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init nats publisher: %w", err)
	}

	logger := baseLogger
	if cfg.NATSLogSubject != "" {
		logger = logging.NewMirroredJSONLogger(serviceName, cfg.LogLevel, publisher, cfg.NATSLogSubject)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ledgerRepo := postgres.NewLedgerRepository(db)
	if err := ledgerRepo.EnsureSchema(ctx); err != nil {
		publisher.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}

	claimStore := claimspg.NewStore(db)
	if err := claimStore.EnsureSchema(ctx); err != nil {
		publisher.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ensure claims schema: %w", err)
	}

	tracker := ocr.NewTracker(pdftext.New(), logger, ocr.Config{
		Workers:          cfg.OCRWorkers,
		EngineTimeout:    cfg.OCREngineTimeout,
		SubmitRatePerSec: float64(cfg.OCRSubmitRate),
		TaskRetention:    cfg.OCRTaskRetention,
	})

	classifier := openrouter.New(openrouter.Config{
		BaseURL:      cfg.ClassifierURL,
		APIKey:       cfg.ClassifierAPIKey,
		Model:        cfg.ClassifierModel,
		Timeout:      cfg.ClassifierTimeout,
		ParseRetries: cfg.ClassifierParseRetries,
		Executor:     executor,
	})

	notifier := usecase.NewPublishOnceNotifier(claimStore, publisher, logger, usecase.NotifierConfig{
		Topic:     cfg.NATSSubject,
		MarkerTTL: cfg.PublishMarkerTTL,
	})

	fanout := usecase.NewAttachmentFanOut(claimStore, tracker, logger, usecase.FanOutConfig{
		Workers:      cfg.OCRWorkers,
		ClaimTTL:     cfg.AttachmentClaimTTL,
		CacheTTL:     cfg.ResultCacheTTL,
		PollInterval: cfg.OCRPollInterval,
		PollAttempts: cfg.OCRPollAttempts,
	})

	ingestUC := usecase.NewIngestEmailUseCase(claimStore, fanout, classifier, ledgerRepo, notifier, logger, usecase.IngestConfig{
		ClaimTTL: cfg.EmailClaimTTL,
		CacheTTL: cfg.ResultCacheTTL,
	})

	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)
	processor := metrics.NewInstrumentedProcessor(ingestUC, pipelineMetrics, serviceName)

	source, err := maildrop.New(cfg.MailDropDir, logger)
	if err != nil {
		publisher.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init mail source: %w", err)
	}

	pollUC := usecase.NewMailboxPollUseCase(source, processor, logger, usecase.PollConfig{
		Interval: cfg.MailPollInterval,
		Workers:  cfg.EmailWorkers,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Publisher: publisher,
		Metrics:   pipelineMetrics,
		Ledger:    ledgerRepo,
		Processor: processor,
		PollUC:    pollUC,

		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
