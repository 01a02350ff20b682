package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/randomizedcoder/go-callapp/internal/charset"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.ConfigPath) == "" && cfg.ScrapeURL == "" {
		errs = append(errs, ValidationError{
			Field:   "config",
			Message: "apps file path is required",
		})
	}

	if !cfg.OneShot() {
		if err := validateAddr(cfg.ListenAddr); err != nil {
			errs = append(errs, ValidationError{Field: "listen", Message: err.Error()})
		}
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{Field: "metrics", Message: err.Error()})
		}
	}

	if !strings.HasPrefix(cfg.PathPrefix, "/") {
		errs = append(errs, ValidationError{
			Field:   "prefix",
			Message: fmt.Sprintf("must start with / (got %q)", cfg.PathPrefix),
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "rate_limit", Message: "must not be negative"})
	}
	if cfg.RateLimit > 0 && cfg.Burst < 1 {
		errs = append(errs, ValidationError{Field: "burst", Message: "must be at least 1 when rate limiting"})
	}

	if cfg.MaxConcurrent < 0 {
		errs = append(errs, ValidationError{Field: "max_concurrent", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "shutdown_timeout", Message: "must be positive"})
	}
	if cfg.KillGrace <= 0 {
		errs = append(errs, ValidationError{Field: "kill_grace", Message: "must be positive"})
	}

	if _, err := charset.Lookup(cfg.ResponseCharset); err != nil {
		errs = append(errs, ValidationError{Field: "response_charset", Message: err.Error()})
	}

	if cfg.ScrapeURL != "" {
		if err := validateURL(cfg.ScrapeURL); err != nil {
			errs = append(errs, ValidationError{Field: "scrape", Message: err.Error()})
		}
	}

	if cfg.RunArgs != "" && cfg.Run == "" {
		errs = append(errs, ValidationError{Field: "args", Message: "-args requires -run"})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateApps checks an apps document. Filesystem checks are left to
// preflight.
func ValidateApps(f *AppsFile) error {
	var errs []error

	if len(f.Apps) == 0 {
		errs = append(errs, ValidationError{Field: "apps", Message: "at least one app is required"})
	}

	if strings.ContainsAny(f.Service.Name, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "service.name",
			Message: fmt.Sprintf("must not contain path separators (got %q)", f.Service.Name),
		})
	}
	if _, err := charset.Lookup(f.Service.LogEncoding); err != nil {
		errs = append(errs, ValidationError{Field: "service.log_encoding", Message: err.Error()})
	}
	if f.Service.MaxConcurrent < 0 {
		errs = append(errs, ValidationError{Field: "service.max_concurrent", Message: "must not be negative"})
	}

	for _, name := range f.Names() {
		app := f.Apps[name]
		field := "apps." + name

		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\?#`) {
			errs = append(errs, ValidationError{Field: field, Message: "invalid app name"})
		}
		if strings.TrimSpace(app.Process.FileName) == "" {
			errs = append(errs, ValidationError{Field: field + ".process.file_name", Message: "is required"})
		}
		if app.TimeoutMs != nil && *app.TimeoutMs < 0 {
			errs = append(errs, ValidationError{Field: field + ".timeout_ms", Message: "must not be negative"})
		}
		if app.Wait && app.AllowWait {
			errs = append(errs, ValidationError{Field: field + ".allow_wait", Message: "redundant when wait is true"})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateAddr checks a host:port listen address.
func validateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

// ApplyCheckMode modifies config for -check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
