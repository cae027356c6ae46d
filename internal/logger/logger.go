// Package logger configures the process-wide structured logger and carries
// request-scoped loggers through a context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"taskify/backend/internal/config"
)

type contextKey string

const loggerKey contextKey = "logger"

// Setup builds a JSON logger at the configured level, installs it as the slog
// default and returns it.
func Setup(cfg config.ServerConfig) *slog.Logger {
	return New(os.Stdout, cfg.LogLevel)
}

func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithContext, falling back to the
// default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
