// Package server is the HTTP front end: one GET per launch, the app named
// by the last path segment.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/charset"
	"github.com/randomizedcoder/go-callapp/internal/config"
	"github.com/randomizedcoder/go-callapp/internal/metrics"
	"github.com/randomizedcoder/go-callapp/internal/process"
)

// Launcher starts configured apps on behalf of the handler.
type Launcher interface {
	Lookup(name string) (config.AppDefinition, bool)
	Launch(ctx context.Context, name, extraArgs string) (process.Outcome, error)
	LaunchAsync(ctx context.Context, name, extraArgs string) (string, error)
}

// Rejections counts requests refused before a launch.
type Rejections interface {
	RequestRejected(reason string)
}

// Rejection reasons.
const (
	RejectUnknownApp   = "unknown_app"
	RejectRateLimited  = "rate_limited"
	RejectBusy         = "busy"
	RejectShuttingDown = "shutting_down"
)

// Config holds configuration for the Server.
type Config struct {
	Addr       string
	PathPrefix string

	// Charset encodes text response bodies (default: UTF-8).
	Charset charset.Charset

	// RateLimit is requests/sec per client IP. 0 = unlimited.
	RateLimit float64
	Burst     int

	Launcher   Launcher
	Rejections Rejections // optional
	Logger     *slog.Logger
}

// Server serves launch requests and health checks.
type Server struct {
	cfg    Config
	logger *slog.Logger
	server *http.Server
}

// New creates a Server. ctx bounds background work such as limiter cleanup.
func New(ctx context.Context, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Charset.Encoding == nil {
		cfg.Charset = charset.UTF8
	}

	s := &Server{cfg: cfg, logger: logger}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes(ctx context.Context) http.Handler {
	var launch http.Handler = &launchHandler{
		launcher: s.cfg.Launcher,
		prefix:   normalizePrefix(s.cfg.PathPrefix),
		charset:  s.cfg.Charset,
		logger:   s.logger,
		reject:   s.reject,
	}
	if s.cfg.RateLimit > 0 {
		launch = RateLimit(ctx, RateLimitConfig{
			RequestsPerSec: s.cfg.RateLimit,
			Burst:          s.cfg.Burst,
			OnReject: func(r *http.Request) {
				s.reject(RejectRateLimited)
				s.logger.Warn("request_rate_limited", "remote", r.RemoteAddr, "path", r.URL.Path)
			},
		})(launch)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.HealthHandler)
	mux.HandleFunc("/healthz", metrics.HealthHandler)
	mux.HandleFunc("/ready", metrics.HealthHandler)
	mux.HandleFunc("/readyz", metrics.HealthHandler)
	mux.Handle("/", launch)

	return s.recoverer(mux)
}

func (s *Server) reject(reason string) {
	if s.cfg.Rejections != nil {
		s.cfg.Rejections.RequestRejected(reason)
	}
}

// recoverer turns a handler panic into a 500 "Error: ..." response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error("request_panicked",
					"path", r.URL.Path,
					"panic", p,
				)
				writeText(w, s.cfg.Charset, http.StatusInternalServerError, fmt.Sprintf("Error: %v", p))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done, then shuts down gracefully within
// shutdownTimeout. A listen failure is returned immediately.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("http_server_starting", "addr", ln.Addr().String(), "prefix", normalizePrefix(s.cfg.PathPrefix))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("http_server_error", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Debug("http_server_shutting_down")
	return s.server.Shutdown(shutdownCtx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}
