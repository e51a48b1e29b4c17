// Package observability holds the Prometheus collectors for the gateway.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completion requests by provider and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_requests_total",
			Help: "Total completion requests handled, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// UpstreamDuration tracks backend call latency by provider.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgegate_upstream_duration_seconds",
			Help:    "Latency of backend completion calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"provider"},
	)

	// MemoryOperations counts conversation memory reads and writes.
	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgegate_memory_operations_total",
			Help: "Conversation memory operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// ObserveRequest records one completed request for a provider.
func ObserveRequest(provider string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	RequestsTotal.WithLabelValues(provider, outcome).Inc()
	UpstreamDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveMemory records one memory store operation.
func ObserveMemory(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	MemoryOperations.WithLabelValues(operation, outcome).Inc()
}
