// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every record.
const ServiceName = "site-settings-backend"

// New returns a JSON logger in production and a text logger otherwise.
func New(environment, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, environment, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, environment, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("service", ServiceName)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
