// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// SweepIDKey is the context key for the sweep run ID
	SweepIDKey contextKey = "sweep_id"
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

// WithContext returns a logger with context values extracted.
// Supports request_id and sweep_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("request_id", requestID)),
		}
	}

	if sweepID, ok := ctx.Value(SweepIDKey).(string); ok && sweepID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("sweep_id", sweepID)),
		}
	}

	return newLogger
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// EmailEvent logs email delivery attempts
func (l *Logger) EmailEvent(template, recipient string, success bool, reason string) {
	if success {
		l.Info("email_event",
			slog.String("template", template),
			slog.String("recipient", recipient),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("email_event",
			slog.String("template", template),
			slog.String("recipient", recipient),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// SweepResult logs the outcome of a sweep tick
func (l *Logger) SweepResult(expired, rerouted, exhausted, failures int) {
	l.Info("sweep_result",
		slog.Int("expired", expired),
		slog.Int("rerouted", rerouted),
		slog.Int("exhausted", exhausted),
		slog.Int("failures", failures),
	)
}
