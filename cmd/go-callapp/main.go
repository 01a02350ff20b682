// Package main provides the go-callapp CLI entry point.
//
// go-callapp is a small HTTP service that starts programs declared in a
// YAML apps file. A request to /<app>?<params> launches the app, forwarding
// the query parameters named in its context_args as one extra argument.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/randomizedcoder/go-callapp/internal/charset"
	"github.com/randomizedcoder/go-callapp/internal/config"
	"github.com/randomizedcoder/go-callapp/internal/launcher"
	"github.com/randomizedcoder/go-callapp/internal/logging"
	"github.com/randomizedcoder/go-callapp/internal/metrics"
	"github.com/randomizedcoder/go-callapp/internal/preflight"
	"github.com/randomizedcoder/go-callapp/internal/process"
	"github.com/randomizedcoder/go-callapp/internal/resultlog"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-callapp
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-callapp %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// -scrape needs no apps file
	if cfg.ScrapeURL != "" {
		return runScrape(cfg, os.Stdout)
	}

	apps, err := config.LoadApps(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}
	if err := config.ValidateApps(apps); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s: %v\n", cfg.ConfigPath, err)
		return 1
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = apps.Service.MaxConcurrent
	}

	logCharset, err := charset.Lookup(apps.Service.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: service.log_encoding: %v\n", err)
		return 1
	}

	logger, diag := buildLogger(cfg, apps, logCharset, consoleWriter(cfg))
	logging.SetDefault(logger)
	if diag != nil {
		diag.DumpEnvironment(version, apps.Settings())
		logger.Debug("diagnostic_log_enabled", "path", diag.Path())
	}

	switch {
	case cfg.Check:
		logger.Info("check_mode_enabled", "apps", len(apps.Apps), "max_concurrent", cfg.MaxConcurrent)
		return runCheck(apps, cfg.MaxConcurrent, os.Stdout)

	case cfg.PrintCmd != "":
		return runPrintCmd(newLauncher(cfg, apps, logger, logCharset), cfg.PrintCmd, cfg.RunArgs, os.Stdout)

	case cfg.Run != "":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runOnce(ctx, cfg, newLauncher(cfg, apps, logger, logCharset), os.Stdout)
	}

	return serve(cfg, apps, logger, logCharset)
}

// consoleWriter discards console logs while the dashboard owns the terminal.
func consoleWriter(cfg *config.Config) io.Writer {
	if cfg.TUIEnabled {
		return io.Discard
	}
	return os.Stderr
}

// buildLogger creates the console logger, fanned out to the diagnostic file
// when one is configured. diag is nil when the file is disabled.
func buildLogger(cfg *config.Config, apps *config.AppsFile, cs charset.Charset, w io.Writer) (*slog.Logger, *logging.DiagFile) {
	opts := logging.Options{
		Format:  cfg.LogFormat,
		Level:   "info",
		Verbose: cfg.Verbose,
		Writer:  w,
	}

	dir := cfg.LogDir
	if dir == "" && apps.Logger.Active() {
		dir = apps.Logger.LogFilePath
	}

	var diag *logging.DiagFile
	if dir != "" {
		level := slog.LevelInfo
		if cfg.Verbose {
			level = slog.LevelDebug
		}
		diag = logging.NewDiagFile(logging.DiagFileConfig{
			Dir:      dir,
			Service:  apps.Service.Name,
			Detailed: cfg.DetailedLog || apps.Logger.DetailedLog,
			Level:    level,
			Charset:  cs,
		})
		opts.Extra = []slog.Handler{diag}
	}

	return logging.New(opts), diag
}

// newLauncher builds an unmetered launcher for the one-shot modes.
func newLauncher(cfg *config.Config, apps *config.AppsFile, logger *slog.Logger, cs charset.Charset) *launcher.Launcher {
	return launcher.New(launcher.Config{
		Apps:          apps,
		Logger:        logger,
		Results:       resultlog.New(resultlog.Config{Logger: logger, Charset: cs}),
		MaxConcurrent: cfg.MaxConcurrent,
		KillGrace:     cfg.KillGrace,
	})
}

// =============================================================================
// Diagnostic modes
// =============================================================================

func runCheck(apps *config.AppsFile, maxConcurrent int, w io.Writer) int {
	result := preflight.RunAll(apps, maxConcurrent)
	preflight.PrintResults(w, result)
	if !result.Passed {
		fmt.Fprintln(w, "Preflight checks failed.")
		return 1
	}
	fmt.Fprintf(w, "Configuration OK: %d app(s) defined.\n", len(apps.Apps))
	return 0
}

func runPrintCmd(l *launcher.Launcher, name, extraArgs string, w io.Writer) int {
	inv, err := l.Prepare(name, extraArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	d := inv.Descriptor
	fmt.Fprintf(w, "# Command that would be run for %q:\n", name)
	fmt.Fprintf(w, "# working directory: %s\n", d.WorkingDir)
	if inv.Timeout > 0 {
		fmt.Fprintf(w, "# timeout: %s\n", inv.Timeout)
	}
	if inv.OutputDir != "" {
		fmt.Fprintf(w, "# result files: %s\n", filepath.Join(inv.OutputDir, "<timestamp>_"+inv.Label+"_*"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, d.CommandLine())
	return 0
}

func runOnce(ctx context.Context, cfg *config.Config, l *launcher.Launcher, w io.Writer) int {
	out, err := l.Launch(ctx, cfg.Run, cfg.RunArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := l.Shutdown(cfg.ShutdownTimeout); err != nil {
		slog.Warn("shutdown_incomplete", "error", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitStatus(out)
}

// exitStatus maps an outcome onto the process exit status of -run,
// following the shell conventions for timeouts and missing programs.
func exitStatus(out process.Outcome) int {
	switch out.State {
	case process.StateCompleted:
		if out.ExitCode == nil {
			return 1
		}
		code := *out.ExitCode
		if code < 0 || code > 255 {
			return 1
		}
		return code
	case process.StateTimedOut:
		return 124
	case process.StateCancelled:
		return 130
	case process.StateFailedToStart:
		return 127
	default:
		return 1
	}
}

func runScrape(cfg *config.Config, w io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	snap, err := metrics.Scrape(ctx, nil, cfg.ScrapeURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := snap.WriteTo(w); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
