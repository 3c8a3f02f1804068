// Package logger owns the process-wide structured logger. The HTTP surface,
// the admission pipeline and the queue consumers all share one instance, so
// a single JSON sink sees the whole lifecycle of a charge.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	global *slog.Logger
	once   sync.Once
)

// Init configures the shared logger once; later calls are no-ops, so the
// first component to come up fixes the level.
func Init(level string) {
	once.Do(func() {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(level),
		})
		global = slog.New(handler)
		slog.SetDefault(global)
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the shared logger, initializing at info level if Init was
// never called.
func Get() *slog.Logger {
	if global == nil {
		Init("info")
	}
	return global
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

// LogError records err with the given context attributes; nil errors are
// ignored so call sites can log unconditionally.
func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
