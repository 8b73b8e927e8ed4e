package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Magic link request results
const (
	MagicLinkSent    = "sent"
	MagicLinkLimited = "limited"
	MagicLinkFailed  = "failed"
)

// Metrics collects portal metrics on a private registry. A nil *Metrics is a
// valid no-op collector.
type Metrics struct {
	registry       *prometheus.Registry
	guardDecisions *prometheus.CounterVec
	roleChecks     *prometheus.CounterVec
	magicLinks     *prometheus.CounterVec
	providerCalls  *prometheus.HistogramVec
}

// NewMetrics registers all collectors, including the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Access guard decisions by outcome.",
		}, []string{"outcome"}),
		roleChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_checks_total",
			Help:      "Admin role checks by result.",
		}, []string{"result"}),
		magicLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "magic_links_total",
			Help:      "Magic link requests by result.",
		}, []string{"result"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_provider_request_duration_seconds",
			Help:      "Latency of identity provider calls.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.guardDecisions,
		m.roleChecks,
		m.magicLinks,
		m.providerCalls,
	)
	return m
}

// RecordGuardDecision counts one presence policy outcome
// ("authorized", "redirect" or "provider_error").
func (m *Metrics) RecordGuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// RecordRoleCheck counts one admin role evaluation.
func (m *Metrics) RecordRoleCheck(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.roleChecks.WithLabelValues(result).Inc()
}

// RecordMagicLink counts one sign-in link request.
func (m *Metrics) RecordMagicLink(result string) {
	if m == nil {
		return
	}
	m.magicLinks.WithLabelValues(result).Inc()
}

// ObserveProviderCall records identity provider latency.
func (m *Metrics) ObserveProviderCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
