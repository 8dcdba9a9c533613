package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Publisher is the transport a MirrorHandler copies records to.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MirrorHandler forwards every record to the wrapped handler and
// additionally publishes it as JSON on a broker subject, so operators
// can tail pipeline activity without access to the process stdout.
// Publish failures are dropped; logging must never block the pipeline.
type MirrorHandler struct {
	inner     slog.Handler
	publisher Publisher
	subject   string
}

func NewMirrorHandler(inner slog.Handler, publisher Publisher, subject string) *MirrorHandler {
	return &MirrorHandler{inner: inner, publisher: publisher, subject: subject}
}

func (h *MirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *MirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.inner.Handle(ctx, record); err != nil {
		return err
	}

	payload := map[string]any{
		"time":    record.Time.Format(time.RFC3339),
		"level":   record.Level.String(),
		"message": record.Message,
	}
	record.Attrs(func(attr slog.Attr) bool {
		payload[attr.Key] = attr.Value.String()
		return true
	})

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_ = h.publisher.Publish(publishCtx, h.subject, encoded)
	return nil
}

func (h *MirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MirrorHandler{inner: h.inner.WithAttrs(attrs), publisher: h.publisher, subject: h.subject}
}

func (h *MirrorHandler) WithGroup(name string) slog.Handler {
	return &MirrorHandler{inner: h.inner.WithGroup(name), publisher: h.publisher, subject: h.subject}
}
