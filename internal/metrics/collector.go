// Package metrics provides Prometheus metrics for go-callapp.
//
// All metrics are registered per Collector, so tests and embedded uses can
// pass their own registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stream labels for captured bytes.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Collector manages the Prometheus metrics of one service instance.
type Collector struct {
	info          *prometheus.GaugeVec
	invocations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	active        prometheus.Gauge
	capturedBytes *prometheus.CounterVec
	rejected      *prometheus.CounterVec

	// Timing
	startTime time.Time

	// For summary generation
	mu         sync.Mutex
	current    int
	peakActive int
	total      int64
	states     map[string]int64
	rejections map[string]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string

	// Buckets overrides the duration histogram buckets.
	Buckets []float64
}

// DefaultBuckets spans sub-second helpers to long batch jobs.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}

	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callapp_info",
				Help: "Information about the service (value always 1)",
			},
			[]string{"version"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callapp_invocations_total",
				Help: "Finished invocations by app and terminal state",
			},
			[]string{"app", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callapp_invocation_duration_seconds",
				Help:    "Wall time from request to terminal state",
				Buckets: buckets,
			},
			[]string{"app"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callapp_active_invocations",
				Help: "Invocations currently running",
			},
		),
		capturedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callapp_captured_bytes_total",
				Help: "Bytes captured from redirected output streams",
			},
			[]string{"app", "stream"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callapp_requests_rejected_total",
				Help: "HTTP requests refused before an invocation started",
			},
			[]string{"reason"},
		),
		startTime:  time.Now(),
		states:     make(map[string]int64),
		rejections: make(map[string]int64),
	}

	registry.MustRegister(
		c.info,
		c.invocations,
		c.duration,
		c.active,
		c.capturedBytes,
		c.rejected,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version).Set(1)

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// InvocationStarted records an invocation entering the running set.
func (c *Collector) InvocationStarted() {
	c.active.Inc()

	c.mu.Lock()
	c.current++
	if c.current > c.peakActive {
		c.peakActive = c.current
	}
	c.mu.Unlock()
}

// InvocationFinished records a terminal outcome. Call it once per
// InvocationStarted.
func (c *Collector) InvocationFinished(app, state string, elapsed time.Duration, stdoutBytes, stderrBytes int) {
	c.active.Dec()
	c.invocations.WithLabelValues(app, state).Inc()
	c.duration.WithLabelValues(app).Observe(elapsed.Seconds())
	if stdoutBytes > 0 {
		c.capturedBytes.WithLabelValues(app, StreamStdout).Add(float64(stdoutBytes))
	}
	if stderrBytes > 0 {
		c.capturedBytes.WithLabelValues(app, StreamStderr).Add(float64(stderrBytes))
	}

	c.mu.Lock()
	c.current--
	c.total++
	c.states[state]++
	c.mu.Unlock()
}

// RequestRejected records a request refused before launch
// (e.g. "unknown_app", "rate_limited", "busy").
func (c *Collector) RequestRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()

	c.mu.Lock()
	c.rejections[reason]++
	c.mu.Unlock()
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration         time.Duration
	PeakActive       int
	TotalInvocations int64
	States           map[string]int64
	Rejected         map[string]int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:         time.Since(c.startTime),
		PeakActive:       c.peakActive,
		TotalInvocations: c.total,
		States:           make(map[string]int64, len(c.states)),
		Rejected:         make(map[string]int64, len(c.rejections)),
	}
	for state, n := range c.states {
		s.States[state] = n
	}
	for reason, n := range c.rejections {
		s.Rejected[reason] = n
	}
	return s
}

// PeakActive returns the peak number of concurrent invocations.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}
