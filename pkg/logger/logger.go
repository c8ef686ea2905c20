// Package logger configures structured logging for the bot binaries.
// Everything downstream takes a *log/slog.Logger; this package only
// decides level, format and destination once, at startup.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how the logger is built.
type Options struct {
	// Level is the minimum level: debug, info, warn, error.
	// Default: info.
	Level string

	// Format is the output format: json or text.
	// Default: json.
	Format string

	// Output is the destination. Default: os.Stdout.
	Output io.Writer

	// Debug forces the debug level regardless of Level.
	Debug bool

	// AddSource annotates records with file:line. Expensive, meant
	// for debugging sessions rather than steady-state production.
	AddSource bool
}

// ParseLevel parses a level string. Unknown strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds a logger and installs it as the slog default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(opts.Level)
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// Discard returns a logger that drops everything. Meant for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
