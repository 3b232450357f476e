// Package metrics holds the prometheus collectors of the engine.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tuition"

type Metrics struct {
	registry *prometheus.Registry

	cacheLookups         *prometheus.CounterVec
	cacheEntries         prometheus.Gauge
	collaboratorFailures *prometheus.CounterVec
	admissionDecisions   *prometheus.CounterVec
	paymentAllocations   *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_cache_lookups_total",
			Help:      "Intent cache lookups by result (hit or miss).",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intent_cache_entries",
			Help:      "Entries currently held by the intent cache.",
		}),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_collaborator_failures_total",
			Help:      "Classification collaborator failures that fell back to rule extraction.",
		}, []string{"reason"}),
		admissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Daily quota decisions by result.",
		}, []string{"result"}),
		paymentAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_allocations_total",
			Help:      "Successful payment allocations by outcome (settled or overpaid).",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.cacheLookups,
		m.cacheEntries,
		m.collaboratorFailures,
		m.admissionDecisions,
		m.paymentAllocations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *Metrics) CollaboratorFailure(reason string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) AdmissionDecision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.admissionDecisions.WithLabelValues("allowed").Inc()
		return
	}
	m.admissionDecisions.WithLabelValues("denied").Inc()
}

func (m *Metrics) PaymentAllocated(overpaid bool) {
	if m == nil {
		return
	}
	if overpaid {
		m.paymentAllocations.WithLabelValues("overpaid").Inc()
		return
	}
	m.paymentAllocations.WithLabelValues("settled").Inc()
}
