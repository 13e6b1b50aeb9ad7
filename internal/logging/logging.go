// Package logging builds the slog loggers shared by the scheduler, the
// journal, the HTTP server and the CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// levels maps accepted --log-level names to slog levels. The scheduler has
// no level below debug, so trace is an alias for it.
var levels = map[string]slog.Level{
	"trace":   slog.LevelDebug,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger returns a logger on stderr; stdout carries scenario results.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter returns a logger writing to w. format is "json" for
// structured output; anything else selects text.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel resolves a level name case-insensitively, defaulting to info.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Level resolves the effective level from a --log-level value and the
// --debug shortcut, which wins when set.
func Level(s string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return ParseLevel(s)
}
