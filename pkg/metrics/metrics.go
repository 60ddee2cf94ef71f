package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_sync_runs_total",
			Help: "Total number of per-feed sync runs (count)",
		},
		[]string{"status"},
	)

	EntriesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filter_entries_processed_total",
			Help: "Total number of unread entries evaluated (count)",
		},
	)

	EntriesMarkedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filter_entries_marked_total",
			Help: "Total number of entries marked as read (count)",
		},
	)

	SyncRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filter_sync_run_duration_ms",
			Help:    "Duration of a single feed sync run in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	ActiveRuleSets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filter_active_rule_sets",
			Help: "Number of enabled rule sets (count)",
		},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_upstream_requests_total",
			Help: "Total number of requests to the Miniflux API (count)",
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filter_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_rate_limit_requests_total",
			Help: "Management API requests by rate limit outcome (count)",
		},
		[]string{"outcome"},
	)
)

var registered bool

// Register installs all collectors on the default registry. Safe to call once
// from app initialization; tests use their own registries.
func Register() {
	if registered {
		return
	}
	registered = true

	prometheus.MustRegister(
		SyncRunsTotal,
		EntriesProcessedTotal,
		EntriesMarkedTotal,
		SyncRunDuration,
		ActiveRuleSets,
		UpstreamRequestsTotal,
		CircuitBreakerState,
		RateLimitRequestsTotal,
	)
}

func ObserveSyncRunDuration(d time.Duration, status string) {
	SyncRunDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func SetActiveRuleSets(n int) {
	ActiveRuleSets.Set(float64(n))
}
