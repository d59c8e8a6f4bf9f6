// Package metrics exposes Prometheus instrumentation for the dispatch and
// link layers, grounded on the client_golang usage in
// internal/httputil/rate_limiting.go.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumen",
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Number of entries currently pending in the event queue.",
	})

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lumen",
			Subsystem: "dispatch",
			Name:      "trigger_latency_seconds",
			Help:      "Time to evaluate a single Trigger's action list.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	DispatchWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "dispatch",
			Name:      "warnings_total",
			Help:      "Recoverable dispatch warnings by cause.",
		},
		[]string{"cause"},
	)

	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Recoverable dispatch errors by cause.",
		},
		[]string{"cause"},
	)

	LinkRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "link",
			Name:      "retries_total",
			Help:      "Retransmit/reconnect attempts by link kind.",
		},
		[]string{"kind"},
	)

	LinkDisconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "link",
			Name:      "disconnects_total",
			Help:      "Times a link dropped its stream and entered Disconnected.",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to
// call more than once; registration only happens on the first call.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueueDepth,
			DispatchLatency,
			DispatchWarnings,
			DispatchErrors,
			LinkRetries,
			LinkDisconnects,
		)
	})
}
