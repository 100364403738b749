// Package metrics holds the prometheus collectors for the proxy.
//
// Collectors are registered on the default registry through promauto, so the
// standard promhttp handler exposes them without extra wiring.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream calls
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapproxy_upstream_request_duration_seconds",
			Help:    "Duration of upstream GET requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapproxy_upstream_requests_total",
			Help: "Total number of upstream requests by outcome",
		},
		[]string{"upstream", "outcome"}, // outcome: ok, network, timeout, http_status, malformed_body
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapproxy_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	// Normalization
	MarkersSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapproxy_markers_skipped_total",
			Help: "Upstream marker records dropped during normalization",
		},
	)

	// Inbound HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapproxy_http_request_duration_seconds",
			Help:    "Duration of inbound HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveUpstream records one finished upstream call.
func ObserveUpstream(upstream, outcome string, elapsed time.Duration) {
	UpstreamRequestDuration.WithLabelValues(upstream).Observe(elapsed.Seconds())
	UpstreamRequests.WithLabelValues(upstream, outcome).Inc()
}

// ObserveHTTP records one served inbound request.
func ObserveHTTP(route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
