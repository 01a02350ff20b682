// Package logging provides structured logging for go-callapp.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New.
type Options struct {
	// Format is "json" or "text" (default: json).
	Format string

	// Level is "debug", "info", "warn" or "error" (default: info).
	Level string

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// Writer receives console output (default: os.Stderr).
	Writer io.Writer

	// Extra handlers receive every record as well, e.g. a *DiagFile.
	Extra []slog.Handler
}

// New creates a logger from opts. With extra handlers the console handler
// and the extras are combined with Fanout.
func New(opts Options) *slog.Logger {
	logLevel := parseLevel(opts.Level)
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handler := consoleHandler(w, opts.Format, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: opts.Verbose,
	})

	if len(opts.Extra) > 0 {
		handler = Fanout(append([]slog.Handler{handler}, opts.Extra...)...)
	}
	return slog.New(handler)
}

// NewLogger creates a new structured logger writing to stderr.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	return New(Options{Format: format, Level: level, Verbose: verbose})
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	if format == "" {
		format = "text"
	}
	return slog.New(consoleHandler(w, format, opts))
}

func consoleHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// parseLevel converts a string level to slog.Level.
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
