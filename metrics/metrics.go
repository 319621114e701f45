// Package metrics provides Prometheus metrics for the trust boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for boundary operations.
type Metrics struct {
	enabled bool

	// Credential renewal metrics
	renewalsTotal   *prometheus.CounterVec
	renewalDuration prometheus.Histogram
	replaysTotal    prometheus.Counter
	teardownsTotal  *prometheus.CounterVec

	// OAuth state metrics
	statesIssuedTotal      *prometheus.CounterVec
	stateValidationsTotal  *prometheus.CounterVec
	statesPurgedTotal      prometheus.Counter

	// Webhook validation metrics
	webhookRejectionsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	// Credential renewal metrics
	m.renewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_credential_renewals_total",
		Help: "Total credential renewal attempts",
	}, []string{"result"})

	m.renewalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authkit_credential_renewal_duration_seconds",
		Help:    "Credential renewal duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authkit_request_replays_total",
		Help: "Total requests replayed after a successful renewal",
	})

	m.teardownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_session_teardowns_total",
		Help: "Total session teardowns",
	}, []string{"reason"})

	// OAuth state metrics
	m.statesIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_oauth_states_issued_total",
		Help: "Total OAuth state nonces issued",
	}, []string{"provider"})

	m.stateValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_oauth_state_validations_total",
		Help: "Total OAuth state validations",
	}, []string{"result"})

	m.statesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authkit_oauth_states_purged_total",
		Help: "Total expired OAuth states removed by the sweep",
	})

	// Webhook validation metrics
	m.webhookRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_webhook_rejections_total",
		Help: "Total webhook subscription payloads rejected by validation",
	}, []string{"field"})

	return m
}

// RecordRenewal records a credential renewal attempt outcome.
func (m *Metrics) RecordRenewal(result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.renewalsTotal.WithLabelValues(result).Inc()
	m.renewalDuration.Observe(durationSeconds)
}

// RecordReplay records one replayed request.
func (m *Metrics) RecordReplay() {
	if !m.enabled {
		return
	}
	m.replaysTotal.Inc()
}

// RecordTeardown records a session teardown with its reason.
func (m *Metrics) RecordTeardown(reason string) {
	if !m.enabled {
		return
	}
	m.teardownsTotal.WithLabelValues(reason).Inc()
}

// RecordStateIssued records an issued OAuth state nonce.
func (m *Metrics) RecordStateIssued(provider string) {
	if !m.enabled {
		return
	}
	m.statesIssuedTotal.WithLabelValues(provider).Inc()
}

// RecordStateValidation records a validate-and-consume outcome.
func (m *Metrics) RecordStateValidation(result string) {
	if !m.enabled {
		return
	}
	m.stateValidationsTotal.WithLabelValues(result).Inc()
}

// RecordStatesPurged records records removed by the expiry sweep.
func (m *Metrics) RecordStatesPurged(n int) {
	if !m.enabled {
		return
	}
	m.statesPurgedTotal.Add(float64(n))
}

// RecordWebhookRejection records a validation failure for a field.
func (m *Metrics) RecordWebhookRejection(field string) {
	if !m.enabled {
		return
	}
	m.webhookRejectionsTotal.WithLabelValues(field).Inc()
}
