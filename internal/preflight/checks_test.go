package preflight

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-callapp/internal/config"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}


// =============================================================================
// Helpers
// =============================================================================

func loadApps(t *testing.T, doc string) *config.AppsFile {
	t.Helper()
	apps, err := config.ParseApps([]byte(doc))
	if err != nil {
		t.Fatalf("ParseApps: %v", err)
	}
	return apps
}

func findCheck(t *testing.T, result *Result, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in results", name)
	return Check{}
}

// =============================================================================
// Tests: RunAll
// =============================================================================

func TestRunAll_ValidApp(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	dir := t.TempDir()
	apps := loadApps(t, fmt.Sprintf(`
apps:
  echo:
    process:
      file_name: /bin/sh
      working_directory: %s
    redirection_path: %s
`, dir, dir))

	result := RunAll(apps, 4)

	for _, name := range []string{"echo.executable", "echo.working_directory", "echo.redirection_path"} {
		c := findCheck(t, result, name)
		if !c.Passed || c.Warning {
			t.Errorf("%s: passed=%v warning=%v (%s)", name, c.Passed, c.Warning, c.Message)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".callapp-preflight-*"))
	if len(leftovers) != 0 {
		t.Errorf("preflight files left behind: %v", leftovers)
	}
}

func TestRunAll_MissingExecutable(t *testing.T) {
	apps := loadApps(t, `
apps:
  ghost:
    process:
      file_name: /nonexistent/bin/ghost
      working_directory: /
`)

	result := RunAll(apps, 1)

	if result.Passed {
		t.Error("Result should fail when the executable is missing")
	}
	c := findCheck(t, result, "ghost.executable")
	if c.Passed {
		t.Errorf("executable check passed: %s", c.Message)
	}
	if !strings.Contains(c.Message, "/nonexistent/bin/ghost") {
		t.Errorf("Message should name the path: %s", c.Message)
	}
}

func TestRunAll_ShellAppOnlyWarns(t *testing.T) {
	apps := loadApps(t, `
apps:
  builtin:
    process:
      file_name: not-a-real-program-xyz
      working_directory: /
      use_shell: true
`)

	c := findCheck(t, RunAll(apps, 1), "builtin.executable")
	if !c.Passed || !c.Warning {
		t.Errorf("shell app: passed=%v warning=%v, want warning", c.Passed, c.Warning)
	}
}

func TestRunAll_MissingWorkingDir(t *testing.T) {
	apps := loadApps(t, `
apps:
  lost:
    process:
      file_name: /bin/sh
      working_directory: /nonexistent/dir
`)

	result := RunAll(apps, 1)
	if result.Passed {
		t.Error("Result should fail when the working directory is missing")
	}
	if c := findCheck(t, result, "lost.working_directory"); c.Passed {
		t.Error("working directory check should fail")
	}
}

func TestRunAll_WorkingDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := checkWorkingDir("app", file)
	if c.Passed || !strings.Contains(c.Message, "not a directory") {
		t.Errorf("check = %+v", c)
	}
}

func TestRunAll_UnwritableOutputDirWarns(t *testing.T) {
	apps := loadApps(t, `
apps:
  echo:
    process:
      file_name: /bin/sh
      working_directory: /
    redirection_path: /nonexistent/out
`)

	result := RunAll(apps, 1)
	c := findCheck(t, result, "echo.redirection_path")
	if !c.Passed || !c.Warning {
		t.Errorf("passed=%v warning=%v, want warning", c.Passed, c.Warning)
	}
}

func TestRunAll_NoApps(t *testing.T) {
	result := RunAll(loadApps(t, "service:\n  name: empty\n"), 0)

	c := findCheck(t, result, "apps")
	if !c.Warning {
		t.Error("empty apps file should warn")
	}
}

func TestRunAll_ResourceChecks(t *testing.T) {
	result := RunAll(loadApps(t, ""), 1)

	proc := findCheck(t, result, "process_limit")
	if !proc.Passed && proc.Actual >= proc.Required {
		t.Errorf("Process limit should pass when actual >= required: %s", proc.Message)
	}

	fd := findCheck(t, result, "file_descriptors")
	if runtime.GOOS != "windows" && fd.Actual <= 0 {
		t.Errorf("Actual FD limit should be positive: %d", fd.Actual)
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"process_limit", "ulimit -u"},
		{"report.executable", "file_name"},
		{"report.working_directory", "working_directory"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestCheckExecutable_EdgeCases(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		if check := checkExecutable("app", "", false); check.Passed {
			t.Error("Empty path should fail")
		}
	})

	t.Run("empty_path_shell", func(t *testing.T) {
		if check := checkExecutable("app", "", true); check.Passed {
			t.Error("Empty path should fail even for shell apps")
		}
	})

	t.Run("directory_as_path", func(t *testing.T) {
		if check := checkExecutable("app", t.TempDir(), false); check.Passed {
			t.Error("Directory as executable should fail")
		}
	})
}

func TestParseMaxProcesses(t *testing.T) {
	tests := []struct {
		name   string
		limits string
		want   int
	}{
		{
			name:   "numeric",
			limits: "Limit                     Soft Limit           Hard Limit           Units\nMax processes             63704                127408               processes\n",
			want:   63704,
		},
		{
			name:   "unlimited",
			limits: "Max processes             unlimited            unlimited            processes\n",
			want:   1000000,
		},
		{
			name:   "missing",
			limits: "Max open files            1024                 1048576              files\n",
			want:   0,
		},
		{
			name:   "truncated",
			limits: "Max processes\n",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxProcesses(tt.limits); got != tt.want {
				t.Errorf("parseMaxProcesses() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResult_Add(t *testing.T) {
	result := &Result{Passed: true}

	result.add(Check{Name: "a", Passed: true, Warning: true})
	if !result.Passed {
		t.Error("Warnings don't cause failure")
	}

	result.add(Check{Name: "b", Passed: false})
	if result.Passed {
		t.Error("Result with one failing check should fail")
	}
	if len(result.Checks) != 2 {
		t.Errorf("len(Checks) = %d, want 2", len(result.Checks))
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	check1 := checkFileDescriptors(1)
	check100 := checkFileDescriptors(100)

	if check1.Required == 0 {
		t.Skip("descriptor limit unavailable")
	}
	if check100.Required <= check1.Required {
		t.Error("Required FDs should increase with concurrency")
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "file_descriptors", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)

	out := buf.String()
	for _, want := range []string{"Preflight checks:", "✓ test1: ok", "✗ file_descriptors: 50 available (need 100)", "Fix: ulimit -n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
