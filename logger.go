package fibercache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/fibercache/fiber"
)

// Logger wraps slog.Logger with fibercache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithFile adds a file path field to the logger.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", path),
	}
}

// WithStrategy adds the backend strategy name to the logger.
func (l *Logger) WithStrategy(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("strategy", name),
	}
}

// LogLoad logs a Get.
func (l *Logger) LogLoad(ctx context.Context, f fiber.Fiber, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			"fiber", f.String(),
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"fiber", f.String(),
			"duration", duration,
		)
	}
}

// LogInvalidate logs an invalidation.
func (l *Logger) LogInvalidate(ctx context.Context, reason string, count int) {
	l.DebugContext(ctx, "fibers invalidated",
		"reason", reason,
		"count", count,
	)
}

// LogStatusSkip logs a file left out of a status report.
func (l *Logger) LogStatusSkip(ctx context.Context, path string, err error) {
	l.WithFile(path).WarnContext(ctx, "status skipped file",
		"error", err,
	)
}

// LogStop logs manager shutdown.
func (l *Logger) LogStop(ctx context.Context, pending int, pendingBytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stop did not drain disposal queue",
			"pending", pending,
			"pending_bytes", pendingBytes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "stopped")
	}
}
