// Package ocr tracks asynchronous recognition jobs. Submission returns
// immediately with a task id; a single background writer moves each
// task from processing to exactly one terminal status, and submitters
// poll until then. Tasks survive only for the polling window.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
)

type Config struct {
	Workers          int
	EngineTimeout    time.Duration
	SubmitRatePerSec float64
	TaskRetention    time.Duration
}

func (c Config) normalize() Config {
	out := c
	if out.Workers <= 0 {
		out.Workers = 3
	}
	if out.EngineTimeout <= 0 {
		out.EngineTimeout = 60 * time.Second
	}
	if out.SubmitRatePerSec <= 0 {
		out.SubmitRatePerSec = 5
	}
	if out.TaskRetention <= 0 {
		out.TaskRetention = 10 * time.Minute
	}
	return out
}

type Tracker struct {
	engine  ports.OCREngine
	logger  *slog.Logger
	cfg     Config
	limiter *rate.Limiter
	sem     chan struct{}

	mu    sync.RWMutex
	tasks map[string]domain.OCRTask
	now   func() time.Time
}

func NewTracker(engine ports.OCREngine, logger *slog.Logger, cfg Config) *Tracker {
	cfg = cfg.normalize()
	return &Tracker{
		engine:  engine,
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.SubmitRatePerSec), cfg.Workers),
		sem:     make(chan struct{}, cfg.Workers),
		tasks:   make(map[string]domain.OCRTask),
		now:     time.Now,
	}
}

// Submit registers a new task and hands the payload to the engine in
// the background. It never blocks on the engine itself; queueing and
// rate limiting happen on the background goroutine.
func (t *Tracker) Submit(_ context.Context, content []byte, filename string) (string, error) {
	id := uuid.NewString()

	t.mu.Lock()
	t.evictLocked()
	t.tasks[id] = domain.OCRTask{
		ID:        id,
		Status:    domain.TaskProcessing,
		CreatedAt: t.now(),
	}
	t.mu.Unlock()

	go t.run(id, content, filename)
	return id, nil
}

func (t *Tracker) Poll(_ context.Context, taskID string) (domain.OCRTask, error) {
	t.mu.RLock()
	task, ok := t.tasks[taskID]
	t.mu.RUnlock()
	if !ok {
		return domain.OCRTask{}, domain.WrapError(domain.ErrTaskNotFound, "poll ocr task", fmt.Errorf("id %s", taskID))
	}
	return task, nil
}

func (t *Tracker) run(id string, content []byte, filename string) {
	// The submitter's context is deliberately not inherited: the task
	// outlives the submission call and is bounded by its own timeout.
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.EngineTimeout)
	defer cancel()

	t.sem <- struct{}{}
	defer func() { <-t.sem }()

	if err := t.limiter.Wait(ctx); err != nil {
		t.finish(id, "", fmt.Errorf("await ocr rate limit: %w", err))
		return
	}

	text, err := t.engine.Recognize(ctx, content, filename)
	if err != nil {
		t.logger.Warn("ocr_task_failed", "task_id", id, "filename", filename, "error", err)
	}
	t.finish(id, text, err)
}

// finish is the single terminal write per task. A task already in a
// terminal state is never touched again.
func (t *Tracker) finish(id, text string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok || task.Status != domain.TaskProcessing {
		return
	}
	task.DoneAt = t.now()
	if err != nil {
		task.Status = domain.TaskFailed
		task.Error = err.Error()
	} else {
		task.Status = domain.TaskCompleted
		task.Text = text
	}
	t.tasks[id] = task
}

// evictLocked drops terminal tasks older than the retention window.
// Callers hold t.mu.
func (t *Tracker) evictLocked() {
	cutoff := t.now().Add(-t.cfg.TaskRetention)
	for id, task := range t.tasks {
		if task.Terminal() && task.DoneAt.Before(cutoff) {
			delete(t.tasks, id)
		}
	}
}
