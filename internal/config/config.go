// Package config provides configuration management for go-callapp.
package config

import "time"

// Config holds the process-level options of the service.
// Per-application settings live in the apps file (see AppsFile).
type Config struct {
	// Apps file
	ConfigPath string `json:"config_path"`

	// HTTP front end
	ListenAddr      string        `json:"listen_addr"`
	PathPrefix      string        `json:"path_prefix"`
	RateLimit       float64       `json:"rate_limit"` // requests/sec per client, 0 = unlimited
	Burst           int           `json:"burst"`
	ResponseCharset string        `json:"response_charset"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Execution
	MaxConcurrent int           `json:"max_concurrent"` // 0 = unlimited
	KillGrace     time.Duration `json:"kill_grace"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogDir      string `json:"log_dir"`    // overrides logger.log_file_path
	DetailedLog bool   `json:"detailed_log"`
	TUIEnabled  bool   `json:"tui_enabled"`

	// Diagnostic modes
	Check     bool   `json:"check"`
	PrintCmd  string `json:"print_cmd"` // app name
	Run       string `json:"run"`       // app name
	RunArgs   string `json:"run_args"`
	ScrapeURL string `json:"scrape_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConfigPath: "callapp.yaml",

		// HTTP
		ListenAddr:      "0.0.0.0:5000",
		PathPrefix:      "/",
		RateLimit:       0,
		Burst:           10,
		ResponseCharset: "iso-8859-1",
		ShutdownTimeout: 30 * time.Second,

		// Execution
		MaxConcurrent: 0,
		KillGrace:     5 * time.Second,

		// Observability
		MetricsAddr: "0.0.0.0:17091",
		LogFormat:   "json",
	}
}

// OneShot reports whether a diagnostic mode replaces the server.
func (c *Config) OneShot() bool {
	return c.Check || c.PrintCmd != "" || c.Run != "" || c.ScrapeURL != ""
}
