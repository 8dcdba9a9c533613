package metrics

import (
	"context"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
)

// InstrumentedProcessor wraps an EmailProcessor and records outcome
// counts, durations, and the in-flight gauge for every email.
type InstrumentedProcessor struct {
	next    ports.EmailProcessor
	metrics *PipelineMetrics
	service string
}

func NewInstrumentedProcessor(next ports.EmailProcessor, metrics *PipelineMetrics, service string) *InstrumentedProcessor {
	return &InstrumentedProcessor{next: next, metrics: metrics, service: service}
}

func (p *InstrumentedProcessor) ProcessEmail(ctx context.Context, email domain.InboundEmail) (domain.ProcessOutcome, error) {
	p.metrics.StartEmail()
	start := time.Now()

	outcome, err := p.next.ProcessEmail(ctx, email)

	label := string(outcome)
	if err != nil {
		label = "error"
	}
	p.metrics.FinishEmail(p.service, label, time.Since(start))

	switch outcome {
	case domain.OutcomeSkippedDone:
		p.metrics.RecordDedup(p.service, "already_done")
	case domain.OutcomeSkippedInFlight:
		p.metrics.RecordDedup(p.service, "in_flight")
	}
	return outcome, err
}
