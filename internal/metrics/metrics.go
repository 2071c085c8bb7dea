// Package metrics exposes Prometheus counters and histograms for
// /metrics (§2 Component J). Generalized from the teacher's plain
// atomic-counter text handler onto github.com/prometheus/client_golang,
// the metrics library the rest of the example pack already standardizes
// on for this concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	IngressRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleettrack_ingress_requests_total",
		Help: "Position ingest requests by outcome.",
	}, []string{"outcome"})

	GateVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleettrack_gate_verdicts_total",
		Help: "Gate verdicts by kind.",
	}, []string{"verdict"})

	EventLogPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_eventlog_publish_failures_total",
		Help: "Event log publish calls that returned ok=false, triggering direct-write fallback.",
	})

	DirectWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_direct_writes_total",
		Help: "Single-record writes taken via the direct-write fallback path.",
	})

	PersistenceBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleettrack_persistence_batch_size",
		Help:    "Record count per persistence worker batch.",
		Buckets: []float64{1, 10, 50, 100, 250, 500},
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleettrack_websocket_connections",
		Help: "Currently connected WebSocket sessions.",
	})

	IngressLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleettrack_ingress_latency_seconds",
		Help:    "End-to-end ingress handler latency.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns the exposition endpoint chi mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
