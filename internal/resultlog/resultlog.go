// Package resultlog writes the text captured from an invocation to
// timestamped files in the application's redirection directory.
package resultlog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/charset"
	"github.com/randomizedcoder/go-callapp/internal/process"
)

const (
	stdoutSuffix = "_AppStandardOutput.log"
	stderrSuffix = "_AppStandardError.err"
)

// Config configures a Logger.
type Config struct {
	Logger *slog.Logger

	// Charset encodes the files (default: UTF-8).
	Charset charset.Charset

	// Now overrides the clock (for tests).
	Now func() time.Time
}

// Logger implements process.ResultLogger.
type Logger struct {
	logger *slog.Logger
	cs     charset.Charset
	now    func() time.Time
}

var _ process.ResultLogger = (*Logger)(nil)

// New creates a result Logger.
func New(cfg Config) *Logger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cs := cfg.Charset
	if cs.Encoding == nil {
		cs = charset.UTF8
	}
	return &Logger{logger: logger, cs: cs, now: now}
}

// Persist appends one "HH:mm:ss<TAB><text>" entry per captured stream with
// non-blank text. Nothing is written when outputDir is empty or no stream
// was captured. Write failures are logged at debug level and dropped.
func (l *Logger) Persist(label, outputDir, stdout, stderr string, flags process.CaptureFlags) {
	if strings.TrimSpace(outputDir) == "" || !flags.Any() {
		return
	}

	if flags.Stdout && strings.TrimSpace(stdout) != "" {
		l.write(label, FilePath(outputDir, label, stdoutSuffix, l.now()), stdout)
	}
	if flags.Stderr && strings.TrimSpace(stderr) != "" {
		l.write(label, FilePath(outputDir, label, stderrSuffix, l.now()), stderr)
	}
}

func (l *Logger) write(label, path, text string) {
	entry := l.now().Format("15:04:05") + "\t" + text
	if err := charset.AppendFile(path, l.cs, entry); err != nil {
		l.logger.Debug("result_log_write_failed",
			"label", label,
			"path", path,
			"error", err,
		)
		return
	}
	l.logger.Debug("result_log_written",
		"label", label,
		"path", path,
		"bytes", len(text),
	)
}

// FilePath returns <dir>/<yyyyMMdd_HHmmss>_<label><suffix>.
func FilePath(dir, label, suffix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", t.Format("20060102_150405"), label, suffix))
}

// StdoutPath and StderrPath name the files Persist writes at time t.
func StdoutPath(dir, label string, t time.Time) string { return FilePath(dir, label, stdoutSuffix, t) }
func StderrPath(dir, label string, t time.Time) string { return FilePath(dir, label, stderrSuffix, t) }
