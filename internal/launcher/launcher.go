// Package launcher turns app names into running invocations. It owns the
// process engine and feeds every outcome to the result logger, the metrics
// collector and the stats aggregator.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/randomizedcoder/go-callapp/internal/config"
	"github.com/randomizedcoder/go-callapp/internal/metrics"
	"github.com/randomizedcoder/go-callapp/internal/process"
	"github.com/randomizedcoder/go-callapp/internal/stats"
)

var (
	// ErrUnknownApp is returned for a name missing from the apps file.
	ErrUnknownApp = errors.New("unknown app")

	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("launcher is shutting down")
)

// Config holds configuration for the Launcher.
type Config struct {
	Apps   *config.AppsFile
	Logger *slog.Logger

	// Results persists captured output. Optional.
	Results process.ResultLogger

	// Metrics and Stats receive every outcome. Both optional.
	Metrics *metrics.Collector
	Stats   *stats.Aggregator

	// MaxConcurrent bounds simultaneous invocations (0 = unbounded).
	MaxConcurrent int

	// KillGrace bounds the wait for a killed process.
	KillGrace time.Duration

	// NewID generates invocation IDs (default: ULID).
	NewID func() string
}

// Running describes an in-flight invocation.
type Running struct {
	ID        string
	Name      string
	PID       int
	StartedAt time.Time
	Detached  bool
}

// Launcher coordinates invocations of configured apps.
// It handles slot accounting, tracking in-flight runs, and coordinating shutdown.
type Launcher struct {
	apps    *config.AppsFile
	logger  *slog.Logger
	engine  *process.Engine
	metrics *metrics.Collector
	stats   *stats.Aggregator
	newID   func() string

	// slots is nil when unbounded.
	slots chan struct{}

	// baseCtx parents detached invocations; cancelAll stops them.
	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]*Running

	wg      sync.WaitGroup
	closing atomic.Bool

	launched atomic.Int64
}

// New creates a Launcher.
func New(cfg Config) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	l := &Launcher{
		apps:      cfg.Apps,
		logger:    logger,
		metrics:   cfg.Metrics,
		stats:     cfg.Stats,
		newID:     newID,
		baseCtx:   baseCtx,
		cancelAll: cancel,
		inFlight:  make(map[string]*Running),
	}
	if cfg.MaxConcurrent > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrent)
	}

	l.engine = process.NewEngine(process.EngineConfig{
		Logger:    logger,
		Results:   cfg.Results,
		KillGrace: cfg.KillGrace,
		Callbacks: process.Callbacks{
			OnStart: l.handleStart,
		},
	})

	if l.stats != nil {
		for _, name := range cfg.Apps.Names() {
			l.stats.AddApp(name)
		}
	}

	return l
}

// Prepare resolves name and builds the invocation without running it.
func (l *Launcher) Prepare(name, extraArgs string) (process.Invocation, error) {
	app, ok := l.apps.Lookup(name)
	if !ok {
		return process.Invocation{}, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}

	def := app.ProcessDefinition()
	return process.Invocation{
		ID:         l.newID(),
		Name:       name,
		Label:      l.apps.Label(name),
		Descriptor: process.BuildDescriptor(def, extraArgs),
		Timeout:    def.Timeout,
		OutputDir:  def.OutputDir,
	}, nil
}

// Launch runs name to a terminal state and returns its outcome. Waiting
// for a free slot honours ctx; once running, cancelling ctx kills the
// process. The error is non-nil only when nothing was started.
func (l *Launcher) Launch(ctx context.Context, name, extraArgs string) (process.Outcome, error) {
	inv, err := l.Prepare(name, extraArgs)
	if err != nil {
		return process.Outcome{}, err
	}
	l.wg.Add(1)
	defer l.wg.Done()
	if err := l.acquire(ctx); err != nil {
		return process.Outcome{}, err
	}

	// Shutdown reaches synchronous callers too.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.baseCtx, cancel)
	defer stop()

	return l.execute(ctx, inv, false), nil
}

// LaunchAsync starts name detached from the caller. Only slot acquisition
// honours ctx; the invocation itself runs until it ends or Shutdown
// cancels it. It returns the invocation ID.
func (l *Launcher) LaunchAsync(ctx context.Context, name, extraArgs string) (string, error) {
	inv, err := l.Prepare(name, extraArgs)
	if err != nil {
		return "", err
	}
	l.wg.Add(1)
	if err := l.acquire(ctx); err != nil {
		l.wg.Done()
		return "", err
	}

	go func() {
		defer l.wg.Done()
		l.execute(l.baseCtx, inv, true)
	}()
	return inv.ID, nil
}

func (l *Launcher) acquire(ctx context.Context) error {
	if l.closing.Load() {
		return ErrShuttingDown
	}
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.baseCtx.Done():
		return ErrShuttingDown
	}
}

func (l *Launcher) release() {
	if l.slots != nil {
		<-l.slots
	}
}

// execute runs an invocation that already holds a slot.
func (l *Launcher) execute(ctx context.Context, inv process.Invocation, detached bool) process.Outcome {
	defer l.release()

	l.track(inv, detached)
	defer l.untrack(inv.ID)

	l.launched.Add(1)
	if l.metrics != nil {
		l.metrics.InvocationStarted()
	}
	if l.stats != nil {
		l.stats.Started()
	}

	out := l.engine.Execute(ctx, inv)

	if l.metrics != nil {
		l.metrics.InvocationFinished(out.Name, out.State.String(), out.Duration, len(out.Stdout), len(out.Stderr))
	}
	if l.stats != nil {
		l.stats.Record(out)
	}
	return out
}

func (l *Launcher) track(inv process.Invocation, detached bool) {
	l.mu.Lock()
	l.inFlight[inv.ID] = &Running{
		ID:        inv.ID,
		Name:      inv.Name,
		StartedAt: time.Now(),
		Detached:  detached,
	}
	l.mu.Unlock()
}

func (l *Launcher) untrack(id string) {
	l.mu.Lock()
	delete(l.inFlight, id)
	l.mu.Unlock()
}

// handleStart records the PID of a freshly started process.
func (l *Launcher) handleStart(id string, pid int) {
	l.mu.Lock()
	if r, ok := l.inFlight[id]; ok {
		r.PID = pid
	}
	l.mu.Unlock()
}

// InFlight returns the running invocations, oldest first.
func (l *Launcher) InFlight() []Running {
	l.mu.Lock()
	out := make([]Running, 0, len(l.inFlight))
	for _, r := range l.inFlight {
		out = append(out, *r)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ActiveCount returns the number of in-flight invocations.
func (l *Launcher) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inFlight)
}

// LaunchedCount returns the total number of invocations started.
func (l *Launcher) LaunchedCount() int64 {
	return l.launched.Load()
}

// Apps returns the apps file the launcher serves.
func (l *Launcher) Apps() *config.AppsFile {
	return l.apps
}

// Lookup returns the named app definition.
func (l *Launcher) Lookup(name string) (config.AppDefinition, bool) {
	return l.apps.Lookup(name)
}

// Shutdown refuses new launches and waits up to timeout for in-flight
// invocations. Whatever is still running afterwards is cancelled (killed)
// and waited for.
func (l *Launcher) Shutdown(timeout time.Duration) error {
	l.closing.Store(true)
	l.logger.Info("shutdown_initiated", "in_flight", l.ActiveCount())

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		l.cancelAll()
		l.logger.Info("all_invocations_finished")
		return nil
	case <-timer.C:
	}

	n := l.ActiveCount()
	l.logger.Warn("shutdown_timeout", "cancelling", n)
	l.cancelAll()
	<-done
	return fmt.Errorf("shutdown: %d invocation(s) cancelled after %s", n, timeout)
}
