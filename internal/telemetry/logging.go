// Package telemetry configures structured logging for the taskflow binaries.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by SetupLogger when no explicit value is given.
const (
	EnvLogLevel  = "TASKFLOW_LOG_LEVEL"
	EnvLogFormat = "TASKFLOW_LOG_FORMAT"
)

// ParseLevel maps DEBUG, INFO, WARN or ERROR (any case) to a slog level.
// Anything else is INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w.
// format "text" selects the human-readable handler; anything else is JSON.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger builds the process-wide logger on w (stderr for the CLI, keeping
// stdout free for command output) and installs it as slog's default.
// Empty arguments fall back to TASKFLOW_LOG_LEVEL and TASKFLOW_LOG_FORMAT.
func SetupLogger(w io.Writer, level, format string) *slog.Logger {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}
	if format == "" {
		format = os.Getenv(EnvLogFormat)
	}

	logger := NewLogger(w, level, format)
	slog.SetDefault(logger)
	return logger
}
