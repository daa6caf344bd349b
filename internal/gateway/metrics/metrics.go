// Package metrics implements the gateway's counter component (C9): a set
// of atomic in-process counters exposed via Snapshot, mirrored onto
// Prometheus metrics for scraping. The dual reporting follows the
// OCX backend's internal/escrow.Metrics registration idiom (promauto against
// an injected *prometheus.Registry rather than the global one, so
// multiple instances — as in tests — never collide on metric names).
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ocx/trustgate/internal/gateway/clock"
)

// Counters holds the gateway's atomic request counters plus their
// Prometheus mirrors.
type Counters struct {
	totalRequests    atomic.Int64
	allowCount       atomic.Int64
	denyCount        atomic.Int64
	monitorCount     atomic.Int64
	rateLimitHits    atomic.Int64
	replayDetections atomic.Int64
	latencyMSSum     atomic.Int64

	startedAt int64
	clock     clock.Clock

	promRequests prometheus.Counter
	promVerdicts *prometheus.CounterVec
	promRateHits prometheus.Counter
	promReplays  prometheus.Counter
	promLatency  prometheus.Histogram
}

// New constructs a Counters and registers its Prometheus series against
// reg. Pass prometheus.NewRegistry() for an isolated registry (tests,
// multiple gateway instances in one process) or a shared one in
// production.
func New(reg *prometheus.Registry, c clock.Clock) *Counters {
	factory := promauto.With(reg)
	m := &Counters{
		clock:     c,
		startedAt: c.Now(),
		promRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustgate_requests_total",
			Help: "Total number of validation requests handled.",
		}),
		promVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgate_verdicts_total",
			Help: "Total number of requests by verdict.",
		}, []string{"verdict"}),
		promRateHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustgate_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),
		promReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustgate_replay_detections_total",
			Help: "Total number of replayed credentials detected.",
		}),
		promLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustgate_request_latency_ms",
			Help:    "End-to-end pipeline latency in milliseconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return m
}

// IncrementTotal increments total_requests alone. This runs
// unconditionally, before the rate limiter or any other gate, so every
// request is counted, rate-limited ones included, regardless of which pipeline stage
// ultimately produces its verdict.
func (m *Counters) IncrementTotal() {
	m.totalRequests.Add(1)
	m.promRequests.Inc()
}

// RecordRequest folds a completed request's verdict and latency into
// the running sums. total_requests is NOT incremented here — see
// IncrementTotal, called once per request at pipeline entry.
func (m *Counters) RecordRequest(verdict string, latencyMS float64) {
	m.latencyMSSum.Add(int64(latencyMS))
	m.promVerdicts.WithLabelValues(verdict).Inc()
	m.promLatency.Observe(latencyMS)

	switch verdict {
	case "ALLOW":
		m.allowCount.Add(1)
	case "MONITOR":
		m.monitorCount.Add(1)
	case "DENY":
		m.denyCount.Add(1)
	}
}

// RecordRateLimitHit increments deny_count and rate_limit_hits together,
// as the pipeline's rate-limit step requires.
func (m *Counters) RecordRateLimitHit() {
	m.denyCount.Add(1)
	m.rateLimitHits.Add(1)
	m.promRateHits.Inc()
	m.promVerdicts.WithLabelValues("DENY").Inc()
}

// RecordReplayDetection increments deny_count and replay_detections
// together.
func (m *Counters) RecordReplayDetection() {
	m.denyCount.Add(1)
	m.replayDetections.Add(1)
	m.promReplays.Inc()
	m.promVerdicts.WithLabelValues("DENY").Inc()
}

// RecordDeny increments deny_count alone, for deny paths that carry
// neither a rate-limit nor a replay reason (verification failure,
// low score, internal error).
func (m *Counters) RecordDeny() {
	m.denyCount.Add(1)
	m.promVerdicts.WithLabelValues("DENY").Inc()
}

// Snapshot is the point-in-time JSON-able view of all counters, returned
// by the /metrics HTTP endpoint alongside the Prometheus exposition.
type Snapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	AllowCount       int64   `json:"allow_count"`
	DenyCount        int64   `json:"deny_count"`
	MonitorCount     int64   `json:"monitor_count"`
	RateLimitHits    int64   `json:"rate_limit_hits"`
	ReplayDetections int64   `json:"replay_detections"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	UptimeSeconds    int64   `json:"uptime_seconds"`
}

// Snapshot returns a consistent-enough point-in-time read of all
// counters. Individual fields are read with independent atomic loads;
// under concurrent writers the snapshot is not a single atomic
// transaction: an approximate, monotonic counters guarantee rather
// than exact linearizability.
func (m *Counters) Snapshot() Snapshot {
	total := m.totalRequests.Load()
	var avg float64
	if total > 0 {
		avg = float64(m.latencyMSSum.Load()) / float64(total)
	}
	return Snapshot{
		TotalRequests:    total,
		AllowCount:       m.allowCount.Load(),
		DenyCount:        m.denyCount.Load(),
		MonitorCount:     m.monitorCount.Load(),
		RateLimitHits:    m.rateLimitHits.Load(),
		ReplayDetections: m.replayDetections.Load(),
		AvgLatencyMS:     avg,
		UptimeSeconds:    m.clock.Now() - m.startedAt,
	}
}
