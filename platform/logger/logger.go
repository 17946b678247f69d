// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRFQ returns a logger scoped to one RFQ.
func (l *Logger) WithRFQ(rfqID string) *Logger {
	return &Logger{Logger: l.With(slog.String("rfq_id", rfqID))}
}

// WithTask returns a logger scoped to one notification task.
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{Logger: l.With(slog.String("task_id", taskID))}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// DeliveryAttempt logs the outcome of one notification delivery attempt.
func (l *Logger) DeliveryAttempt(taskID, outcome string, attempt int, err error) {
	attrs := []any{
		slog.String("task_id", taskID),
		slog.String("outcome", outcome),
		slog.Int("attempt", attempt),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Warn("delivery_attempt", attrs...)
		return
	}
	l.Info("delivery_attempt", attrs...)
}
