// Package observability configures structured logging for kin.
//
// It wraps log/slog with secret redaction and trace id propagation so that
// every log line emitted while handling an utterance carries its trace.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/kin/common/redact"
	"github.com/bdobrica/kin/common/trace"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
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

// NewLogger builds a logger writing to w in the given format ("json" or text).
// secrets are masked wherever they appear.
func NewLogger(w io.Writer, level, format string, secrets ...string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(redact.NewHandler(handler, secrets...))
}

// Setup installs a logger writing to w as the slog default and returns it.
func Setup(w io.Writer, level, format string, secrets ...string) *slog.Logger {
	logger := NewLogger(w, level, format, secrets...)
	slog.SetDefault(logger)
	return logger
}

// WithTrace returns logger with the trace_id from ctx attached, if any.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	id := trace.FromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With("trace_id", id)
}
