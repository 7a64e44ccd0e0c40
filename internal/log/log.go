// Package log holds the process-wide slog logger for dolyd. Library
// packages never use it directly; they take a *slog.Logger option and
// the binaries pass Component loggers in.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	level  = new(slog.LevelVar)
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// Init installs the global logger on stdout. format is "json" or "text";
// empty picks json when GO_ENV=production. Only the first call has an
// effect.
func Init(lvl, format string) {
	InitWriter(os.Stdout, lvl, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, lvl, format string) {
	once.Do(func() {
		level.Set(ParseLevel(lvl))
		logger = newLogger(w, format)
		slog.SetDefault(logger)
	})
}

func newLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "" && os.Getenv("GO_ENV") == "production" {
		format = "json"
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLevel changes the level at runtime, e.g. on config reload.
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

// Level returns the current global level.
func Level() slog.Level {
	return level.Level()
}

// L returns the global logger, initializing it at info if needed.
func L() *slog.Logger {
	if logger == nil {
		Init("info", "")
	}
	return logger
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
