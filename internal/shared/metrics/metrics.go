// Package metrics exposes Prometheus collectors for the resumes API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resumes_operations_total",
			Help: "Resume operations, labeled by operation and outcome kind.",
		},
		[]string{"operation", "outcome"},
	)

	operationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resumes_operation_duration_seconds",
			Help:    "Resume operation latency including store retries.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	storeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resumes_store_retries_total",
			Help: "Store calls retried after the record store was unavailable.",
		},
		[]string{"operation"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// ObserveOperation records the outcome and latency of a resume operation.
func ObserveOperation(operation, outcome string, elapsed time.Duration) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncStoreRetry counts a retried store call.
func IncStoreRetry(operation string) {
	storeRetriesTotal.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest records a served HTTP request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes metrics in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
