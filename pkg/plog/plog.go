// Package plog provides the process-global logger for pgl-publish. Records at
// INFO and below are routed to stdout, WARNING and above to stderr, so
// operator-facing progress stays separable from problems in shell pipelines.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	slogmulti "github.com/samber/slog-multi"
)

var defaultLogger *slog.Logger
var levelVar slog.LevelVar
var quietMode atomic.Bool // Use an atomic bool for safe concurrent reads.

func init() {
	levelVar.Set(slog.LevelInfo)
	defaultLogger = slog.New(newDispatchHandler(os.Stdout, os.Stderr))
}

// newDispatchHandler builds a router that sends warnings and errors to errW
// and everything else to outW, both gated by the shared level var.
func newDispatchHandler(outW, errW io.Writer) slog.Handler {
	stdoutHandler := slog.NewTextHandler(outW, &slog.HandlerOptions{Level: &levelVar})
	stderrHandler := slog.NewTextHandler(errW, &slog.HandlerOptions{Level: &levelVar})

	belowWarn := func(ctx context.Context, r slog.Record) bool { return r.Level < slog.LevelWarn }
	warnAndAbove := func(ctx context.Context, r slog.Record) bool { return r.Level >= slog.LevelWarn }

	return slogmulti.Router().
		Add(stdoutHandler, belowWarn).
		Add(stderrHandler, warnAndAbove).
		Handler()
}

// SetOutput allows redirecting the logger's output, primarily for testing.
func SetOutput(w io.Writer) {
	// When redirecting output for tests, ensure quiet mode is off
	// so that all levels are written to the provided writer.
	quietMode.Store(false)
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetLevel adjusts the minimum level of the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a config/flag string to a slog.Level. Unknown values
// fall back to INFO rather than failing, so a typo in a config file does not
// block a publish.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetQuiet enables or disables quiet mode for the global logger.
// In quiet mode, INFO level logs and below are suppressed.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the global logger is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
