package vendorapi

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// vendorRequestsTotal tracks outbound vendor calls by module, method and status
	vendorRequestsTotal *prometheus.CounterVec

	// vendorRequestDuration tracks latency of outbound vendor calls
	vendorRequestDuration *prometheus.HistogramVec

	// vendorErrorsTotal tracks vendor call errors by type
	vendorErrorsTotal *prometheus.CounterVec

	// tokenRefreshTotal tracks OAuth2 token refreshes by module and outcome
	tokenRefreshTotal *prometheus.CounterVec

	// responseActionsTotal tracks mutating response actions by module, operation and outcome
	responseActionsTotal *prometheus.CounterVec
)

// InitMetrics registers all Prometheus metrics for vendor integrations.
// This should be called once at application startup.
func InitMetrics() {
	metricsOnce.Do(func() {
		vendorRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_api_requests_total",
				Help: "Total number of outbound vendor API calls by module, method and status",
			},
			[]string{"module", "method", "status"},
		)

		vendorRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendor_api_request_duration_seconds",
				Help:    "Duration of outbound vendor API calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"module"},
		)

		vendorErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_api_errors_total",
				Help: "Total number of vendor API errors by module and error type",
			},
			[]string{"module", "error_type"},
		)

		tokenRefreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_token_refresh_total",
				Help: "Total number of OAuth2 token requests by module and outcome",
			},
			[]string{"module", "status"},
		)

		responseActionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_response_actions_total",
				Help: "Total number of mutating response actions by module, operation and outcome",
			},
			[]string{"module", "operation", "outcome"},
		)
	})
}

// RecordRequest records one outbound vendor call.
// status: numeric HTTP status, "timeout" or "transport_error"
func RecordRequest(module, method, status string) {
	if vendorRequestsTotal != nil {
		vendorRequestsTotal.WithLabelValues(module, method, status).Inc()
	}
}

// RecordDuration records the duration of one outbound vendor call.
func RecordDuration(module string, d time.Duration) {
	if vendorRequestDuration != nil {
		vendorRequestDuration.WithLabelValues(module).Observe(d.Seconds())
	}
}

// RecordError records a vendor call error by type.
// errorType: "timeout", "auth", "rate_limit", "not_found", "server_error", "connection", "http_error", "circuit_open"
func RecordError(module, errorType string) {
	if vendorErrorsTotal != nil {
		vendorErrorsTotal.WithLabelValues(module, errorType).Inc()
	}
}

// RecordTokenRefresh records one token endpoint round-trip.
// status: "success", "error"
func RecordTokenRefresh(module, status string) {
	if tokenRefreshTotal != nil {
		tokenRefreshTotal.WithLabelValues(module, status).Inc()
	}
}

// RecordResponseAction records a mutating response action outcome.
// outcome: "success", "error"
func RecordResponseAction(module, operation, outcome string) {
	if responseActionsTotal != nil {
		responseActionsTotal.WithLabelValues(module, operation, outcome).Inc()
	}
}
