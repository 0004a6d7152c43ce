// Package metrics exposes the Prometheus gauges, counters, and histograms
// used across the cluster runtime.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request queue metrics (C6).
	RQDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worldgs_rq_depth",
			Help: "Current depth of a request queue, by owner id.",
		},
		[]string{"owner_id"},
	)

	RQAverageDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldgs_rq_average_depth",
			Help: "Average depth across all live request queues.",
		},
	)

	RQProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldgs_rq_processing_duration_seconds",
			Help:    "Time taken to process a request queue item, by handler tag.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tag"},
	)

	RQActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldgs_rq_active_total",
			Help: "Number of request queues currently registered in the directory.",
		},
	)

	// Persistence cache metrics (C4).
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldgs_cache_hits_total",
			Help: "Number of persistence cache hits.",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldgs_cache_misses_total",
			Help: "Number of persistence cache misses that triggered a storage load.",
		},
	)

	CacheInFlightLoads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldgs_cache_inflight_loads",
			Help: "Number of loads currently in flight (coalesced via singleflight).",
		},
	)

	PostRequestWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worldgs_post_request_write_duration_seconds",
			Help:    "Time taken to write back a request's dirty set.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Session metrics (C8).
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldgs_sessions_active",
			Help: "Number of active client sessions.",
		},
	)

	// RPC metrics (C7).
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgs_rpc_requests_total",
			Help: "Total number of outbound RPC requests by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldgs_rpc_request_duration_seconds",
			Help:    "RPC round-trip duration in seconds by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Cluster supervisor metrics (C9).
	HeartbeatAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worldgs_heartbeat_age_seconds",
			Help: "Seconds since the last heartbeat pong from a peer, by peer id.",
		},
		[]string{"peer_id"},
	)

	WorkerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgs_worker_restarts_total",
			Help: "Total number of worker respawns by peer id.",
		},
		[]string{"peer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		RQDepth,
		RQAverageDepth,
		RQProcessingDuration,
		RQActive,
		CacheHits,
		CacheMisses,
		CacheInFlightLoads,
		PostRequestWriteDuration,
		SessionsActive,
		RPCRequestsTotal,
		RPCRequestDuration,
		HeartbeatAge,
		WorkerRestartsTotal,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for observing into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
