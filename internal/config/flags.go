package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Usage and errors go to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-callapp", flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(output, `go-callapp - start configured programs over HTTP

Usage:
  go-callapp [flags]

Configuration:
`)
		printFlagCategory(fs, output, []string{"config"})

		fmt.Fprintf(output, "\nHTTP:\n")
		printFlagCategory(fs, output, []string{"listen", "prefix", "rate-limit", "burst", "response-charset", "shutdown-timeout"})

		fmt.Fprintf(output, "\nExecution:\n")
		printFlagCategory(fs, output, []string{"max-concurrent", "kill-grace"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "v", "log-format", "log-dir", "detailed-log", "tui"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(fs, output, []string{"check", "print-cmd", "run", "args", "scrape"})

		fmt.Fprintf(output, `
Examples:
  # Serve the apps defined in callapp.yaml
  go-callapp -config callapp.yaml

  # Validate the configuration and exit
  go-callapp -config callapp.yaml -check

  # Run one app once and print its outcome
  go-callapp -run report -args '"user=bob"'

  # Show this service's metrics
  go-callapp -scrape http://localhost:17091/metrics

`)
	}

	// Configuration
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to the YAML apps file")

	// HTTP
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.PathPrefix, "prefix", cfg.PathPrefix, "URL path prefix served")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second per client (0 = unlimited)")
	fs.IntVar(&cfg.Burst, "burst", cfg.Burst, "Rate limit burst size")
	fs.StringVar(&cfg.ResponseCharset, "response-charset", cfg.ResponseCharset, "Charset of HTTP response bodies")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for running invocations on shutdown")

	// Execution
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "Maximum concurrent invocations (0 = unlimited)")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "Wait for a killed process to be reaped")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Diagnostic log directory (overrides logger.log_file_path)")
	fs.BoolVar(&cfg.DetailedLog, "detailed-log", cfg.DetailedLog, "Write wrapped error chains to the diagnostic log")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Diagnostics
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate configuration, run preflight checks and exit")
	fs.StringVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the command line of an app and exit")
	fs.StringVar(&cfg.Run, "run", cfg.Run, "Run an app once, print its outcome and exit")
	fs.StringVar(&cfg.RunArgs, "args", cfg.RunArgs, "Extra argument string for -run")
	fs.StringVar(&cfg.ScrapeURL, "scrape", cfg.ScrapeURL, "Fetch and summarise a metrics endpoint and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if getter, ok := f.Value.(flag.Getter); ok {
		switch getter.Get().(type) {
		case bool:
			return ""
		case int, int64:
			return "int"
		case float64:
			return "float"
		case fmt.Stringer:
			return "duration"
		}
	}
	return "string"
}
