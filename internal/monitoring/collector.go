// Package monitoring tracks prediction traffic and raises alerts when the
// service degrades.
package monitoring

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot holds a point-in-time view of service health. Counters are
// cumulative since process start.
type MetricsSnapshot struct {
	Requests         int64            `json:"requests"`
	Predictions      int64            `json:"predictions"`
	Explanations     int64            `json:"explanations"`
	Errors           int64            `json:"errors"`
	ErrorsByKind     map[string]int64 `json:"errors_by_kind,omitempty"`
	ErrorRate        float64          `json:"error_rate"`
	WaterQualityStub int64            `json:"water_quality_stub"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`

	Model        string `json:"model,omitempty"`
	BreakerState string `json:"breaker_state,omitempty"`

	UptimeSecs  int64     `json:"uptime_secs"`
	CollectedAt time.Time `json:"collected_at"`

	latencyNanos int64
}

// Since returns the traffic between prev and s. Point-in-time fields are
// taken from s.
func (s *MetricsSnapshot) Since(prev *MetricsSnapshot) *MetricsSnapshot {
	if prev == nil {
		return s
	}
	d := *s
	d.Requests -= prev.Requests
	d.Predictions -= prev.Predictions
	d.Explanations -= prev.Explanations
	d.Errors -= prev.Errors
	d.WaterQualityStub -= prev.WaterQualityStub
	d.ErrorsByKind = make(map[string]int64, len(s.ErrorsByKind))
	for k, v := range s.ErrorsByKind {
		if n := v - prev.ErrorsByKind[k]; n != 0 {
			d.ErrorsByKind[k] = n
		}
	}
	d.ErrorRate = rate(d.Errors, d.Requests)
	d.latencyNanos -= prev.latencyNanos
	d.AvgLatencyMs = avgMs(d.latencyNanos, d.Predictions)
	return &d
}

// Collector counts pipeline outcomes. Safe for concurrent use.
type Collector struct {
	requests     atomic.Int64
	predictions  atomic.Int64
	explanations atomic.Int64
	waterStub    atomic.Int64
	latencyNanos atomic.Int64

	mu     sync.Mutex
	errors map[string]int64

	model   string
	breaker func() string
	started time.Time
	now     func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithModel labels snapshots with the serving model.
func WithModel(name string) CollectorOption {
	return func(c *Collector) { c.model = name }
}

// WithBreakerState reports the remote circuit breaker in snapshots.
func WithBreakerState(fn func() string) CollectorOption {
	return func(c *Collector) { c.breaker = fn }
}

// NewCollector creates a new metrics collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		errors: make(map[string]int64),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// RecordPrediction counts a successful run and its latency.
func (c *Collector) RecordPrediction(d time.Duration, explained bool) {
	c.requests.Add(1)
	c.predictions.Add(1)
	if explained {
		c.explanations.Add(1)
	}
	c.latencyNanos.Add(int64(d))
}

// RecordError counts a failed run under kind.
func (c *Collector) RecordError(kind string) {
	c.requests.Add(1)
	c.mu.Lock()
	c.errors[kind]++
	c.mu.Unlock()
}

// RecordWaterQualityStub counts a call to the unimplemented water surface.
func (c *Collector) RecordWaterQualityStub() {
	c.waterStub.Add(1)
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	now := c.now()
	snap := &MetricsSnapshot{
		Requests:         c.requests.Load(),
		Predictions:      c.predictions.Load(),
		Explanations:     c.explanations.Load(),
		WaterQualityStub: c.waterStub.Load(),
		Model:            c.model,
		UptimeSecs:       int64(now.Sub(c.started).Seconds()),
		CollectedAt:      now.UTC(),
	}

	c.mu.Lock()
	snap.ErrorsByKind = maps.Clone(c.errors)
	c.mu.Unlock()
	for _, n := range snap.ErrorsByKind {
		snap.Errors += n
	}

	snap.ErrorRate = rate(snap.Errors, snap.Requests)
	snap.latencyNanos = c.latencyNanos.Load()
	snap.AvgLatencyMs = avgMs(snap.latencyNanos, snap.Predictions)
	if c.breaker != nil {
		snap.BreakerState = c.breaker()
	}
	return snap
}

func rate(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func avgMs(nanos, n int64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(nanos) / float64(n) / float64(time.Millisecond)
}
