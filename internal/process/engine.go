package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/logging"
)

var (
	// ErrDirectoryNotFound is reported when the working directory is missing.
	ErrDirectoryNotFound = errors.New("working directory not found")

	// ErrStartFailed is reported when the OS refuses to start the process.
	ErrStartFailed = errors.New("process start failed")
)

// DefaultKillGrace bounds how long the engine waits for a killed process
// to be reaped before returning anyway.
const DefaultKillGrace = 5 * time.Second

// Invocation is one request to run a descriptor.
type Invocation struct {
	// ID uniquely identifies the invocation in logs.
	ID string

	// Name is the configured application name.
	Name string

	// Label names result log files. Defaults to Name.
	Label string

	Descriptor Descriptor

	// Timeout bounds the invocation. 0 = wait for completion forever.
	Timeout time.Duration

	// OutputDir receives result log files. Empty = none.
	OutputDir string
}

func (inv Invocation) label() string {
	if inv.Label != "" {
		return inv.Label
	}
	return inv.Name
}

// Callbacks contains optional callback functions for engine events.
type Callbacks struct {
	// OnStart is called once the process is running.
	OnStart func(id string, pid int)

	// OnFinish is called with the final outcome, before Execute returns.
	OnFinish func(out Outcome)
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	Logger    *slog.Logger
	Results   ResultLogger // optional
	Callbacks Callbacks

	// KillGrace bounds the wait for a killed process (default: 5s).
	KillGrace time.Duration

	// TailLines is how many stderr lines are attached to failure logs (default: 20).
	TailLines int
}

// Engine runs invocations. It holds no per-invocation state, so one Engine
// serves any number of concurrent Execute calls.
type Engine struct {
	logger    *slog.Logger
	results   ResultLogger
	callbacks Callbacks
	killGrace time.Duration
	tailLines int
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	killGrace := cfg.KillGrace
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}

	return &Engine{
		logger:    logger,
		results:   cfg.Results,
		callbacks: cfg.Callbacks,
		killGrace: killGrace,
		tailLines: cfg.TailLines,
	}
}

// Execute runs the invocation to a terminal state and returns its outcome.
// It never panics and never returns an error: every failure is described
// by the outcome. Cancelling ctx kills the process like a timeout does.
func (e *Engine) Execute(ctx context.Context, inv Invocation) (out Outcome) {
	out = Outcome{
		ID:        inv.ID,
		Name:      inv.Name,
		State:     StateNotStarted,
		StartedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.State = StateUnexpectedError
			out.ExitCode = nil
			out.UnexpectedError = fmt.Sprintf("unexpected error while running %s: %v", inv.Name, r)
			e.logger.Error("invocation_panicked",
				"id", inv.ID,
				"app", inv.Name,
				"panic", r,
			)
		}
		out.Duration = time.Since(out.StartedAt)
		if e.callbacks.OnFinish != nil {
			e.callbacks.OnFinish(out)
		}
	}()

	dir := inv.Descriptor.WorkingDir
	if !dirExists(dir) {
		out.State = StateFailedToStart
		out.StartupError = fmt.Errorf("directory %s does not exist: %w", dir, ErrDirectoryNotFound).Error()
		e.logger.Warn("working_directory_missing",
			"id", inv.ID,
			"app", inv.Name,
			"dir", dir,
		)
		e.persist(inv, out)
		return out
	}

	var err error
	out, err = e.run(ctx, inv, out)
	if err != nil {
		out.State = StateUnexpectedError
		out.ExitCode = nil
		out.UnexpectedError = fmt.Sprintf("unexpected error while running %s: %v", inv.Name, err)
		e.logger.Error("invocation_error",
			"id", inv.ID,
			"app", inv.Name,
			"error", err,
		)
	}

	e.persist(inv, out)
	return out
}

// run starts the process and monitors it. A returned error is unexpected;
// start failures are reported through the outcome.
func (e *Engine) run(ctx context.Context, inv Invocation, out Outcome) (Outcome, error) {
	desc := inv.Descriptor

	cmd, err := desc.Command()
	if err != nil {
		return e.startFailed(inv, out, err), nil
	}

	var streams []*stream
	defer func() {
		for _, s := range streams {
			s.closeWriter()
			s.closeReader()
		}
	}()

	var stdout, stderr *stream
	if desc.CaptureStdout {
		if stdout, err = newStream("stdout"); err != nil {
			return out, fmt.Errorf("stdout pipe: %w", err)
		}
		streams = append(streams, stdout)
		cmd.Stdout = stdout.w
	}
	if desc.CaptureStderr {
		if stderr, err = newStream("stderr"); err != nil {
			return out, fmt.Errorf("stderr pipe: %w", err)
		}
		streams = append(streams, stderr)
		cmd.Stderr = stderr.w
	}

	if err := cmd.Start(); err != nil {
		return e.startFailed(inv, out, err), nil
	}

	// IMPORTANT: close the parent's write ends right after Start,
	// otherwise readers never see EOF.
	for _, s := range streams {
		s.closeWriter()
	}

	out.State = StateRunning
	out.PID = cmd.Process.Pid

	// Drain every redirected stream BEFORE waiting on anything. A child
	// blocked on a full pipe would otherwise never exit.
	tail := logging.NewTailBuffer(e.tailLines)
	exited := NewCompletionSignal()
	signals := []*CompletionSignal{exited}
	if stdout != nil {
		signals = append(signals, stdout.eof)
		go stdout.drain(nil)
	}
	if stderr != nil {
		signals = append(signals, stderr.eof)
		go stderr.drain(tail.Add)
	}

	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		exited.Resolve()
	}()

	// A panic below (callbacks, log handlers) unwinds past the race with the
	// state still running. The child must not outlive Execute.
	defer func() {
		if out.State == StateRunning {
			e.logger.Warn("invocation_aborted",
				"id", inv.ID,
				"app", inv.Name,
				"pid", out.PID,
			)
			e.kill(inv, cmd.Process, exited)
		}
	}()

	e.logger.Info("invocation_started",
		"id", inv.ID,
		"app", inv.Name,
		"pid", out.PID,
		"timeout", inv.Timeout.String(),
	)
	if e.callbacks.OnStart != nil {
		e.callbacks.OnStart(inv.ID, out.PID)
	}

	var deadline <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	// Completion = exit AND end-of-stream on every captured stream.
	select {
	case <-AllResolved(signals...):
		// waitErr is visible: it was written before exited resolved.
		code := extractExitCode(waitErr)
		out.ExitCode = &code
		out.State = StateCompleted

	case <-deadline:
		out.State = StateTimedOut
		e.kill(inv, cmd.Process, exited)
		e.awaitStreams(inv, stdout, stderr)

	case <-ctx.Done():
		out.State = StateCancelled
		e.kill(inv, cmd.Process, exited)
		e.awaitStreams(inv, stdout, stderr)
	}

	var captured []any
	if stdout != nil {
		out.Stdout = stdout.buf.String()
		captured = append(captured, "stdout_lines", stdout.buf.Lines())
	}
	if stderr != nil {
		out.Stderr = stderr.buf.String()
		captured = append(captured, "stderr_lines", stderr.buf.Lines())
	}

	e.logFinish(inv, out, tail, captured...)
	return out, nil
}

// kill terminates the process and waits, bounded, for it to be reaped.
func (e *Engine) kill(inv Invocation, p *os.Process, exited *CompletionSignal) {
	// The process may have exited in the meantime; that is not an error.
	if err := terminate(p); err != nil {
		e.logger.Debug("terminate_ignored",
			"id", inv.ID,
			"pid", p.Pid,
			"error", err,
		)
	}

	select {
	case <-exited.Done():
	case <-time.After(e.killGrace):
		e.logger.Warn("process_not_reaped",
			"id", inv.ID,
			"app", inv.Name,
			"pid", p.Pid,
			"grace", e.killGrace.String(),
		)
	}
}

// awaitStreams lets the drains pick up what a killed child wrote last. A pipe
// still held by an escaped grandchild only costs killGrace.
func (e *Engine) awaitStreams(inv Invocation, streams ...*stream) {
	var eofs []*CompletionSignal
	for _, s := range streams {
		if s != nil {
			eofs = append(eofs, s.eof)
		}
	}
	if len(eofs) == 0 {
		return
	}

	timer := time.NewTimer(e.killGrace)
	defer timer.Stop()

	select {
	case <-AllResolved(eofs...):
	case <-timer.C:
		e.logger.Debug("stream_still_open",
			"id", inv.ID,
			"app", inv.Name,
			"grace", e.killGrace.String(),
		)
	}
}

func (e *Engine) startFailed(inv Invocation, out Outcome, err error) Outcome {
	out.State = StateFailedToStart
	out.ExitCode = nil
	out.StartupError = fmt.Errorf("%w: %s: %v", ErrStartFailed, inv.Descriptor.Executable, err).Error()
	e.logger.Error("invocation_start_failed",
		"id", inv.ID,
		"app", inv.Name,
		"executable", inv.Descriptor.Executable,
		"error", err,
	)
	return out
}

func (e *Engine) logFinish(inv Invocation, out Outcome, tail *logging.TailBuffer, captured ...any) {
	attrs := []any{
		"id", inv.ID,
		"app", inv.Name,
		"pid", out.PID,
		"state", out.State.String(),
		"elapsed", time.Since(out.StartedAt).String(),
	}
	attrs = append(attrs, captured...)

	switch {
	case out.State == StateCompleted && *out.ExitCode == 0:
		e.logger.Info("invocation_completed", append(attrs, "exit_code", 0)...)
	case out.State == StateCompleted:
		attrs = append(attrs, "exit_code", *out.ExitCode)
		if tail.Len() > 0 {
			attrs = append(attrs, "stderr_tail", strings.Join(tail.Lines(0), "\n"))
		}
		e.logger.Warn("invocation_failed", attrs...)
	default:
		attrs = append(attrs, "timeout", inv.Timeout.String())
		if tail.Len() > 0 {
			attrs = append(attrs, "stderr_tail", strings.Join(tail.Lines(0), "\n"))
		}
		e.logger.Warn("invocation_"+out.State.String(), attrs...)
	}
}

func (e *Engine) persist(inv Invocation, out Outcome) {
	if e.results == nil {
		return
	}
	e.results.Persist(inv.label(), inv.OutputDir, out.Stdout, out.Stderr, inv.Descriptor.CaptureFlags())
}

// dirExists reports whether path names an existing directory.
func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
