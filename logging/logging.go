// Package logging builds the process-wide slog logger.
//
// Logging goes to stderr by default. When USBSHARK_LOG_FILE is set, output is
// duplicated to a rotating log file so long capture sessions on headless
// hardware keep a bounded on-disk history.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLogLevel = "USBSHARK_LOG_LEVEL"
	envLogFile  = "USBSHARK_LOG_FILE"

	maxLogSizeMB  = 20
	maxLogBackups = 3
	maxLogAgeDays = 14
)

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(envLogLevel)) {
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

// NewFromEnv creates a logger configured from USBSHARK_LOG_LEVEL and
// USBSHARK_LOG_FILE. It never fails; a broken file sink degrades to stderr.
func NewFromEnv() (*slog.Logger, error) {
	var w io.Writer = os.Stderr

	if path := os.Getenv(envLogFile); path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		})
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFromEnv()})
	return slog.New(h), nil
}

// New creates a logger writing to the given writer at the given level.
// Used by tests and by mains that manage their own sinks.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
