// Package metrics exposes Prometheus instrumentation for guard evaluation and
// the intent lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omniagentpay/payguard/internal/domain"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	guardEvaluations  *prometheus.CounterVec
	intentTransitions *prometheus.CounterVec
	executionLatency  *prometheus.HistogramVec
	ledgerErrors      prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		guardEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "guard_evaluations_total",
			Help:      "Guard rule evaluations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		intentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "intent_transitions_total",
			Help:      "Intent status transitions by resulting status.",
		}, []string{"status"}),
		executionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payguard",
			Name:      "execution_duration_seconds",
			Help:      "Payment executor call latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		ledgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "ledger_errors_total",
			Help:      "Ledger sink writes that failed.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.guardEvaluations,
		m.intentTransitions,
		m.executionLatency,
		m.ledgerErrors,
	)
	return m
}

// GuardResults counts one evaluation per result.
func (m *Metrics) GuardResults(results []domain.GuardResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		outcome := "passed"
		if !r.Passed {
			outcome = "failed"
		}
		m.guardEvaluations.With(prometheus.Labels{"kind": string(r.Kind), "outcome": outcome}).Inc()
	}
}

// Transition counts an intent reaching status.
func (m *Metrics) Transition(status domain.IntentStatus) {
	if m == nil {
		return
	}
	m.intentTransitions.With(prometheus.Labels{"status": string(status)}).Inc()
}

// Execution records an executor call.
func (m *Metrics) Execution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executionLatency.With(prometheus.Labels{"outcome": outcome}).Observe(d.Seconds())
}

// LedgerError counts a failed ledger write.
func (m *Metrics) LedgerError() {
	if m == nil {
		return
	}
	m.ledgerErrors.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
