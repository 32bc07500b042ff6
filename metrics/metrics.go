// Package metrics provides Prometheus metrics for the HTTP server and the
// locator sessions behind it.
//
// HTTP:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Locator:
//   - locator_visible_pharmacies: Histogram of visible list sizes
//   - locator_fetch_total: Counter with outcome label (applied, superseded, failed)
//   - locator_route_requests_total: Counter with outcome label
//   - locator_active_sessions: Gauge of live sessions
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	VisiblePharmacies = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locator_visible_pharmacies",
			Help:    "Number of pharmacies shown on the map after each list change",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locator_fetch_total",
			Help: "Pharmacy list fetches by outcome",
		},
		[]string{"outcome"},
	)

	RouteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locator_route_requests_total",
			Help: "Route requests by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "locator_active_sessions",
			Help: "Locator sessions currently held in memory",
		},
	)
)

// Fetch outcomes.
const (
	OutcomeApplied    = "applied"
	OutcomeSuperseded = "superseded"
	OutcomeFailed     = "failed"
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(VisiblePharmacies)
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(RouteRequestsTotal)
	prometheus.MustRegister(ActiveSessions)
}
