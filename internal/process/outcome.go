package process

import "time"

// Outcome summarises how one invocation ended. It is produced exactly once
// and handed to the caller by value.
type Outcome struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State State  `json:"state"`

	// ExitCode is nil when the process was killed (timeout or cancel)
	// or never started.
	ExitCode *int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	StartupError    string `json:"startup_error,omitempty"`
	UnexpectedError string `json:"unexpected_error,omitempty"`

	PID       int           `json:"pid,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Succeeded reports a completed invocation with exit code 0.
func (o Outcome) Succeeded() bool {
	return o.State == StateCompleted && o.ExitCode != nil && *o.ExitCode == 0
}

// ErrorText returns the startup or unexpected error text, or "".
func (o Outcome) ErrorText() string {
	switch {
	case o.UnexpectedError != "":
		return o.UnexpectedError
	case o.StartupError != "":
		return o.StartupError
	default:
		return ""
	}
}

// CaptureFlags reports which streams were redirected for an invocation.
type CaptureFlags struct {
	Stdout bool
	Stderr bool
}

// Any reports whether at least one stream was captured.
func (f CaptureFlags) Any() bool {
	return f.Stdout || f.Stderr
}

// ResultLogger persists captured text once an invocation has ended.
// Implementations must swallow their own write failures.
type ResultLogger interface {
	Persist(label, outputDir, stdout, stderr string, flags CaptureFlags)
}
