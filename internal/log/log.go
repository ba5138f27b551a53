package log

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// All output goes to stderr: stdout is reserved for the inventory document.
var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Configure sets up the package logger with the given level and format.
// Level is one of trace, debug, info, warn, error. Format is "console" or
// "json"; when empty, console is used on a terminal and json otherwise.
func Configure(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "trace", "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		} else {
			format = "json"
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
}

// Debug logs a debug message with key-value pairs
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Info logs an informational message with key-value pairs
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Warn logs a warning message with key-value pairs
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message with key-value pairs
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}
