package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-callapp/internal/charset"
	"github.com/randomizedcoder/go-callapp/internal/config"
	"github.com/randomizedcoder/go-callapp/internal/launcher"
	"github.com/randomizedcoder/go-callapp/internal/metrics"
	"github.com/randomizedcoder/go-callapp/internal/resultlog"
	"github.com/randomizedcoder/go-callapp/internal/server"
	"github.com/randomizedcoder/go-callapp/internal/stats"
	"github.com/randomizedcoder/go-callapp/internal/tui"
)

// serve runs the HTTP front end until SIGINT/SIGTERM (or the dashboard is
// closed), drains running invocations and prints the exit summary.
func serve(cfg *config.Config, apps *config.AppsFile, logger *slog.Logger, logCharset charset.Charset) int {
	respCharset, err := charset.Lookup(cfg.ResponseCharset)
	if err != nil {
		logger.Error("invalid_response_charset", "charset", cfg.ResponseCharset, "error", err)
		return 1
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: version}, registry)
	aggregator := stats.NewAggregator(stats.DefaultRecentSize)

	l := launcher.New(launcher.Config{
		Apps:          apps,
		Logger:        logger,
		Results:       resultlog.New(resultlog.Config{Logger: logger, Charset: logCharset}),
		Metrics:       collector,
		Stats:         aggregator,
		MaxConcurrent: cfg.MaxConcurrent,
		KillGrace:     cfg.KillGrace,
	})

	logger.Info("starting",
		"version", version,
		"service", apps.Service.Name,
		"apps", len(apps.Apps),
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"max_concurrent", cfg.MaxConcurrent,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(gctx, server.Config{
		Addr:       cfg.ListenAddr,
		PathPrefix: cfg.PathPrefix,
		Charset:    respCharset,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
		Launcher:   l,
		Rejections: collector,
		Logger:     logger,
	})
	g.Go(func() error {
		return srv.Run(gctx, cfg.ShutdownTimeout)
	})

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, registry, logger)
		g.Go(func() error {
			return ms.Run(gctx)
		})
	}

	if cfg.TUIEnabled {
		p := tea.NewProgram(tui.New(tui.Config{
			Service:        apps.Service.Name,
			ListenAddr:     cfg.ListenAddr,
			MetricsAddr:    cfg.MetricsAddr,
			MaxConcurrent:  cfg.MaxConcurrent,
			StatsSource:    aggregator,
			InFlightSource: l,
		}), tea.WithAltScreen())

		g.Go(func() error {
			// Closing the dashboard stops the service.
			defer stop()
			_, err := p.Run()
			return err
		})
		go func() {
			<-gctx.Done()
			tui.SendQuit(p)
		}()
	} else {
		printBanner(os.Stdout, cfg, apps)
	}

	if err := g.Wait(); err != nil {
		logger.Error("service_failed", "error", err)
	}
	logger.Info("shutting_down", "in_flight", l.ActiveCount())

	if err := l.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("shutdown_incomplete", "error", err)
	}

	summary := collector.GenerateSummary()
	fmt.Print(stats.FormatExitSummary(aggregator.Aggregate(), stats.SummaryConfig{
		Service:     apps.Service.Name,
		Duration:    aggregator.Elapsed(),
		ListenAddr:  cfg.ListenAddr,
		MetricsAddr: cfg.MetricsAddr,
		Rejected:    summary.Rejected,
	}))

	if ctx.Err() == nil {
		// The group ended without a signal: a listener failed.
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, apps *config.AppsFile) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                            go-callapp                             ║")
	fmt.Fprintln(w, "║             Start configured programs over HTTP                   ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Service:     %s\n", apps.Service.Name)
	fmt.Fprintf(w, "  Listen:      http://%s%s<app>\n", cfg.ListenAddr, cfg.PathPrefix)
	fmt.Fprintf(w, "  Apps:        %d defined\n", len(apps.Apps))
	for _, name := range apps.Names() {
		app, _ := apps.Lookup(name)
		mode := "fire-and-forget"
		switch {
		case app.Wait:
			mode = "wait"
		case app.AllowWait:
			mode = "wait on ?wait=1"
		}
		fmt.Fprintf(w, "               - %s (%s)\n", name, mode)
	}
	if cfg.MaxConcurrent > 0 {
		fmt.Fprintf(w, "  Limit:       %d concurrent invocations\n", cfg.MaxConcurrent)
	}
	if cfg.RateLimit > 0 {
		fmt.Fprintf(w, "  Rate limit:  %.2f req/s per client (burst %d)\n", cfg.RateLimit, cfg.Burst)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
