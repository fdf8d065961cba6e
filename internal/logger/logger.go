// Package logger builds the structured, colorized logger used throughout
// the gateway on top of github.com/lmittmann/tint.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New creates a colorized slog.Logger writing to stdout. level can be
// "debug", "info", "warn", or "error"; anything else defaults to "info".
func New(level string) *slog.Logger {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: "02.01.06 15:04:05",
	})
	return slog.New(handler)
}

// NewJSON creates a structured JSON logger, used when output is consumed
// by a log-aggregation pipeline rather than a terminal.
func NewJSON(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Duration is a slog-friendly attribute helper for durations, consistently
// rendered to the millisecond.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.String(key, d.Round(time.Millisecond).String())
}
