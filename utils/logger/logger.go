// Package logger provides structured logging for the feed-digest service.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init initializes a JSON logger and installs it as the slog default.
// The level is read from LOG_LEVEL (debug, info, warn, error).
func Init() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	l := slog.New(handler)
	slog.SetDefault(l)

	l.Info("logger initialized", "level", level.String())

	return l
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
