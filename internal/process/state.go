package process

import "fmt"

// State is the lifecycle position of a single invocation.
type State int

const (
	// StateNotStarted is the initial state before the process is spawned.
	StateNotStarted State = iota

	// StateRunning indicates the process was started and is being monitored.
	StateRunning

	// StateCompleted means the process exited and every captured stream closed.
	StateCompleted

	// StateTimedOut means the deadline elapsed first and the process was killed.
	StateTimedOut

	// StateCancelled means the caller's context ended first and the process was killed.
	StateCancelled

	// StateFailedToStart covers a missing working directory and OS start failures.
	StateFailedToStart

	// StateUnexpectedError covers anything outside the start/monitor/capture path.
	StateUnexpectedError
)

var stateNames = map[State]string{
	StateNotStarted:      "not_started",
	StateRunning:         "running",
	StateCompleted:       "completed",
	StateTimedOut:        "timed_out",
	StateCancelled:       "cancelled",
	StateFailedToStart:   "failed_to_start",
	StateUnexpectedError: "unexpected_error",
}

// String returns the snake_case name used in logs, metrics and JSON.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s >= StateCompleted && s <= StateUnexpectedError
}

// TerminalStates lists every terminal state in declaration order.
func TerminalStates() []State {
	return []State{StateCompleted, StateTimedOut, StateCancelled, StateFailedToStart, StateUnexpectedError}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
