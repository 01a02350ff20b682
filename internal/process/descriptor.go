// Package process starts configured external programs, drains their output
// and decides how each invocation ended.
package process

import (
	"path/filepath"
	"strings"
	"time"
)

// Definition describes how a configured application is launched.
// It is supplied by the configuration layer and never modified.
type Definition struct {
	// Executable is the path to the program (or a name resolved via PATH).
	Executable string

	// WorkingDir is the directory the program runs in.
	// Derived from the executable's directory when empty.
	WorkingDir string

	// Arguments is the raw argument string.
	Arguments string

	// CaptureStdout and CaptureStderr redirect the matching stream into the outcome.
	CaptureStdout bool
	CaptureStderr bool

	// UseShell runs the command line through the platform shell.
	UseShell bool

	// CreateNoWindow suppresses the console window on Windows. Ignored elsewhere.
	CreateNoWindow bool

	// Timeout bounds the invocation. 0 = wait forever.
	Timeout time.Duration

	// OutputDir receives the captured text as log files. Empty = no files.
	OutputDir string
}

// ResolvedWorkingDir returns WorkingDir, or the executable's directory if unset.
func (d Definition) ResolvedWorkingDir() string {
	if d.WorkingDir != "" {
		return d.WorkingDir
	}
	return filepath.Dir(d.Executable)
}

// Descriptor is the concrete, OS-ready form of a Definition.
type Descriptor struct {
	Executable     string
	WorkingDir     string
	Arguments      string
	CaptureStdout  bool
	CaptureStderr  bool
	UseShell       bool
	CreateNoWindow bool
}

// CaptureFlags reports which streams a descriptor redirects.
func (d Descriptor) CaptureFlags() CaptureFlags {
	return CaptureFlags{Stdout: d.CaptureStdout, Stderr: d.CaptureStderr}
}

// BuildDescriptor maps a Definition onto a Descriptor. extraArgs, when not
// blank, is appended to the argument string after a single space.
func BuildDescriptor(def Definition, extraArgs string) Descriptor {
	args := def.Arguments
	if strings.TrimSpace(extraArgs) != "" {
		args += " " + extraArgs
	}

	return Descriptor{
		Executable:     def.Executable,
		WorkingDir:     def.ResolvedWorkingDir(),
		Arguments:      args,
		CaptureStdout:  def.CaptureStdout,
		CaptureStderr:  def.CaptureStderr,
		UseShell:       def.UseShell,
		CreateNoWindow: def.CreateNoWindow,
	}
}
