package logging

import (
	"log/slog"
	"os"
	"strings"
)

func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// NewMirroredJSONLogger builds the standard JSON logger with every
// record additionally published on the given broker subject.
func NewMirroredJSONLogger(service, level string, publisher Publisher, subject string) *slog.Logger {
	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(NewMirrorHandler(inner, publisher, subject)).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
