// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-callapp/internal/config"
)

// Note: RLIMIT_NPROC is not portable, so process limits are read from
// /proc/self/limits instead.

// fdsPerInvocation covers the stdout/stderr pipe pairs plus the child's stdin.
const fdsPerInvocation = 6

// assumedConcurrency sizes the resource checks when no limit is configured.
const assumedConcurrency = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes the resource checks and the per-app checks.
func RunAll(apps *config.AppsFile, maxConcurrent int) *Result {
	result := &Result{
		Checks: make([]Check, 0, 2+3*len(apps.Apps)),
		Passed: true,
	}

	concurrency := maxConcurrent
	if concurrency <= 0 {
		concurrency = assumedConcurrency
	}

	result.add(checkFileDescriptors(concurrency))
	result.add(checkProcessLimit(concurrency))

	if len(apps.Apps) == 0 {
		result.add(Check{
			Name:    "apps",
			Passed:  true,
			Warning: true,
			Message: "no applications defined; every request will be rejected",
		})
	}

	for _, name := range apps.Names() {
		app, _ := apps.Lookup(name)
		def := app.ProcessDefinition()

		result.add(checkExecutable(name, def.Executable, def.UseShell))
		result.add(checkWorkingDir(name, def.ResolvedWorkingDir()))
		if def.OutputDir != "" {
			result.add(checkOutputDir(name, def.OutputDir))
		}
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrency int) Check {
	required := concurrency*fdsPerInvocation + 100

	actual, err := openFileLimit()
	if err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent invocations)", actual, required, concurrency),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(concurrency int) Check {
	required := concurrency + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses reads the soft "Max processes" limit. 0 = unknown.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkExecutable verifies the app's program can be started. Shell apps only
// warn, since the shell may resolve builtins and aliases.
func checkExecutable(app, path string, useShell bool) Check {
	name := app + ".executable"

	fail := func(msg string) Check {
		return Check{Name: name, Passed: useShell, Warning: useShell, Message: msg}
	}

	if path == "" {
		return Check{Name: name, Passed: false, Message: "file_name is empty"}
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return fail(fmt.Sprintf("%s: %v", path, err))
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fail(fmt.Sprintf("%s: %v", resolved, err))
	}
	if !info.Mode().IsRegular() {
		return fail(fmt.Sprintf("%s is not a regular file", resolved))
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", resolved),
	}
}

// checkWorkingDir verifies the directory the app runs in exists.
func checkWorkingDir(app, dir string) Check {
	name := app + ".working_directory"

	info, err := os.Stat(dir)
	if err != nil {
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("%s: %v", dir, err)}
	}
	if !info.IsDir() {
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	return Check{Name: name, Passed: true, Message: dir}
}

// checkOutputDir verifies result files can be written. Failures only warn:
// the invocation itself still runs.
func checkOutputDir(app, dir string) Check {
	name := app + ".redirection_path"

	f, err := os.CreateTemp(dir, ".callapp-preflight-*")
	if err != nil {
		return Check{
			Name:    name,
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("not writable, result files will be lost: %v", err),
		}
	}
	path := f.Name()
	f.Close()
	os.Remove(path)

	return Check{Name: name, Passed: true, Message: filepath.Clean(dir)}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case strings.HasSuffix(name, ".executable"):
		return "check process.file_name in the apps file (absolute path or a name on PATH)"
	case strings.HasSuffix(name, ".working_directory"):
		return "create the directory or fix process.working_directory"
	default:
		return "see the apps file documentation"
	}
}
