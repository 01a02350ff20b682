package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// AppSnapshot is the scraped view of one app.
type AppSnapshot struct {
	Name          string
	States        map[string]float64
	DurationCount uint64
	DurationSum   float64 // seconds
	StdoutBytes   float64
	StderrBytes   float64
}

// Total returns the number of finished invocations.
func (a *AppSnapshot) Total() float64 {
	var n float64
	for _, v := range a.States {
		n += v
	}
	return n
}

// MeanDuration returns the average invocation duration.
func (a *AppSnapshot) MeanDuration() time.Duration {
	if a.DurationCount == 0 {
		return 0
	}
	return time.Duration(a.DurationSum / float64(a.DurationCount) * float64(time.Second))
}

// Snapshot is a decoded /metrics page of a running instance.
type Snapshot struct {
	Version   string
	Active    float64
	Apps      map[string]*AppSnapshot
	Rejected  map[string]float64
	ScrapedAt time.Time
}

// AppNames returns the app names, sorted.
func (s *Snapshot) AppNames() []string {
	names := make([]string, 0, len(s.Apps))
	for name := range s.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshot) app(name string) *AppSnapshot {
	a, ok := s.Apps[name]
	if !ok {
		a = &AppSnapshot{Name: name, States: make(map[string]float64)}
		s.Apps[name] = a
	}
	return a
}

// Scrape fetches url and decodes it into a Snapshot.
func Scrape(ctx context.Context, client *http.Client, url string) (*Snapshot, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return ParseSnapshot(resp.Body)
}

// ParseSnapshot decodes Prometheus text format into a Snapshot.
// Families other than callapp_* are ignored.
func ParseSnapshot(r io.Reader) (*Snapshot, error) {
	families, err := decodeFamilies(r)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		Apps:      make(map[string]*AppSnapshot),
		Rejected:  make(map[string]float64),
		ScrapedAt: time.Now(),
	}

	if mf, ok := families["callapp_info"]; ok {
		for _, m := range mf.GetMetric() {
			s.Version = labelValue(m, "version")
		}
	}

	if mf, ok := families["callapp_active_invocations"]; ok && len(mf.GetMetric()) > 0 {
		s.Active = mf.GetMetric()[0].GetGauge().GetValue()
	}

	if mf, ok := families["callapp_invocations_total"]; ok {
		for _, m := range mf.GetMetric() {
			a := s.app(labelValue(m, "app"))
			a.States[labelValue(m, "state")] += m.GetCounter().GetValue()
		}
	}

	if mf, ok := families["callapp_invocation_duration_seconds"]; ok {
		for _, m := range mf.GetMetric() {
			a := s.app(labelValue(m, "app"))
			a.DurationCount += m.GetHistogram().GetSampleCount()
			a.DurationSum += m.GetHistogram().GetSampleSum()
		}
	}

	if mf, ok := families["callapp_captured_bytes_total"]; ok {
		for _, m := range mf.GetMetric() {
			a := s.app(labelValue(m, "app"))
			switch labelValue(m, "stream") {
			case StreamStdout:
				a.StdoutBytes += m.GetCounter().GetValue()
			case StreamStderr:
				a.StderrBytes += m.GetCounter().GetValue()
			}
		}
	}

	if mf, ok := families["callapp_requests_rejected_total"]; ok {
		for _, m := range mf.GetMetric() {
			s.Rejected[labelValue(m, "reason")] += m.GetCounter().GetValue()
		}
	}

	return s, nil
}

// WriteTo prints a human-readable summary of the snapshot.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "go-callapp %s: %.0f active\n\n", s.Version, s.Active)
	fmt.Fprintf(cw, "  %-20s %8s %10s %10s %10s %12s\n", "APP", "TOTAL", "COMPLETED", "TIMED_OUT", "FAILED", "MEAN")
	for _, name := range s.AppNames() {
		a := s.Apps[name]
		failed := a.States["failed_to_start"] + a.States["unexpected_error"]
		fmt.Fprintf(cw, "  %-20s %8.0f %10.0f %10.0f %10.0f %12s\n",
			name, a.Total(), a.States["completed"], a.States["timed_out"], failed,
			a.MeanDuration().Round(time.Millisecond))
	}

	if len(s.Rejected) > 0 {
		reasons := make([]string, 0, len(s.Rejected))
		for reason := range s.Rejected {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		fmt.Fprintln(cw)
		for _, reason := range reasons {
			fmt.Fprintf(cw, "  rejected %-12s %.0f\n", reason, s.Rejected[reason])
		}
	}
	return cw.n, cw.err
}

// decodeFamilies parses Prometheus text format into families keyed by name.
func decodeFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	parsed := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		parsed[mf.GetName()] = &mf
	}
	return parsed, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
