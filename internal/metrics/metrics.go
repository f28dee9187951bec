// Package metrics exposes Prometheus counters for the request pipeline.
// Collectors register with the default registry; embedders expose it with
// promhttp as usual.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okx_request_attempts_total",
			Help: "Total HTTP attempts by endpoint and attempt outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okx_requests_total",
			Help: "Total logical requests by endpoint and terminal outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "okx_request_duration_seconds",
			Help:    "Duration of logical requests including retries and backoff",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	tlsDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "okx_tls_verification_downgrades_total",
			Help: "Times certificate verification was switched off after a validation failure",
		},
	)
)

// Outcome labels shared by attempts and requests.
const (
	OutcomeSuccess          = "success"
	OutcomeSecurityFailure  = "security_failure"
	OutcomeTransportFailure = "transport_failure"
)

// RecordAttempt increments the attempt counter.
func RecordAttempt(endpoint, outcome string) {
	attempts.WithLabelValues(endpoint, outcome).Inc()
}

// RecordRequest records the terminal outcome and total duration of a request.
func RecordRequest(endpoint, outcome string, d time.Duration) {
	requests.WithLabelValues(endpoint, outcome).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordTLSDowngrade increments the downgrade counter. Call it only when the
// policy actually changed.
func RecordTLSDowngrade() {
	tlsDowngrades.Inc()
}
