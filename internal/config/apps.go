package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-callapp/internal/process"
)

// DefaultServiceName names log files when service.name is unset.
const DefaultServiceName = "go-callapp"

// AppsFile is the YAML document describing the service and the programs
// it may start.
type AppsFile struct {
	Service ServiceConfig            `yaml:"service"`
	Logger  LoggerConfig             `yaml:"logger"`
	Apps    map[string]AppDefinition `yaml:"apps"`
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name string `yaml:"name"`

	// LogEncoding is the charset of result and diagnostic log files.
	LogEncoding string `yaml:"log_encoding"`

	// MaxConcurrent bounds simultaneous invocations. The -max-concurrent
	// flag wins when set.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// LoggerConfig configures the diagnostic log file.
type LoggerConfig struct {
	LogFilePath   string `yaml:"log_file_path"`
	LogActivation bool   `yaml:"log_activation"`
	DetailedLog   bool   `yaml:"detailed_log"`
}

// Active reports whether the diagnostic file should be written: activation
// must be on and a directory configured.
func (l LoggerConfig) Active() bool {
	return l.LogActivation && strings.TrimSpace(l.LogFilePath) != ""
}

// AppDefinition is one launchable program.
type AppDefinition struct {
	// ContextArgs lists, separated by ';', the query parameters forwarded
	// to the program.
	ContextArgs string `yaml:"context_args"`

	Process ProcessConfig `yaml:"process"`

	// TimeoutMs bounds an invocation. Absent or 0 = no timeout.
	TimeoutMs *int `yaml:"timeout_ms"`

	// RedirectionPath receives the captured output files. Empty = none.
	RedirectionPath string `yaml:"redirection_path"`

	// Wait makes the HTTP response carry the outcome.
	Wait bool `yaml:"wait"`

	// AllowWait lets callers opt in to waiting with ?wait=1.
	AllowWait bool `yaml:"allow_wait"`
}

// ProcessConfig describes how the program is started.
type ProcessConfig struct {
	FileName               string `yaml:"file_name"`
	WorkingDirectory       string `yaml:"working_directory"`
	Arguments              string `yaml:"arguments"`
	UseShell               bool   `yaml:"use_shell"`
	CreateNoWindow         bool   `yaml:"create_no_window"`
	RedirectStandardOutput bool   `yaml:"redirect_standard_output"`
	RedirectStandardError  bool   `yaml:"redirect_standard_error"`
}

// Timeout returns the invocation timeout (0 = none).
func (a AppDefinition) Timeout() time.Duration {
	if a.TimeoutMs == nil || *a.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(*a.TimeoutMs) * time.Millisecond
}

// ProcessDefinition maps the app onto the engine's definition.
func (a AppDefinition) ProcessDefinition() process.Definition {
	p := a.Process
	return process.Definition{
		Executable:     p.FileName,
		WorkingDir:     p.WorkingDirectory,
		Arguments:      p.Arguments,
		CaptureStdout:  p.RedirectStandardOutput,
		CaptureStderr:  p.RedirectStandardError,
		UseShell:       p.UseShell,
		CreateNoWindow: p.CreateNoWindow,
		Timeout:        a.Timeout(),
		OutputDir:      a.RedirectionPath,
	}
}

// ContextArgNames returns the forwarded query parameter names in order.
func (a AppDefinition) ContextArgNames() []string {
	var names []string
	for _, n := range strings.Split(a.ContextArgs, ";") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// LoadApps reads and parses the apps file at path.
func LoadApps(path string) (*AppsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read apps file: %w", err)
	}
	apps, err := ParseApps(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return apps, nil
}

// ParseApps decodes an apps document. Unknown keys are rejected.
func ParseApps(data []byte) (*AppsFile, error) {
	var f AppsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse apps file: %w", err)
	}

	if f.Service.Name == "" {
		f.Service.Name = DefaultServiceName
	}
	if f.Apps == nil {
		f.Apps = map[string]AppDefinition{}
	}
	return &f, nil
}

// Lookup returns the named app.
func (f *AppsFile) Lookup(name string) (AppDefinition, bool) {
	app, ok := f.Apps[name]
	return app, ok
}

// Names returns the app names, sorted.
func (f *AppsFile) Names() []string {
	names := make([]string, 0, len(f.Apps))
	for name := range f.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Label names the result files of an app: <service>_<app>.
func (f *AppsFile) Label(app string) string {
	return f.Service.Name + "_" + app
}

// Settings flattens the document into dotted keys for the diagnostic log.
func (f *AppsFile) Settings() map[string]string {
	out := map[string]string{}

	data, err := yaml.Marshal(f)
	if err != nil {
		return out
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return out
	}

	flatten("", tree, out)
	return out
}

func flatten(prefix string, v any, out map[string]string) {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(x)
	}
}
