// Package metrics provides Prometheus metrics for the reply agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	DispatchesTotal  *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	ErrorsTotal      *prometheus.CounterVec
	RulesActive      prometheus.Gauge
	PollCyclesTotal  prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_comment_events_total",
				Help: "Total number of comment events by ingestion source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_dispatches_total",
				Help: "Total number of reply dispatch attempts by status.",
			},
			[]string{"status"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_dispatch_duration_seconds",
				Help:    "Reply send duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		RulesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_rules_active",
				Help: "Number of configured keyword rules.",
			},
		),
		PollCyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_poll_cycles_total",
				Help: "Number of completed poll cycles.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.DispatchesTotal)
	reg.MustRegister(m.DispatchDuration)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.RulesActive)
	reg.MustRegister(m.PollCyclesTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent increments the comment event counter.
func (m *Metrics) RecordEvent(source, outcome string) {
	m.EventsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordDispatch increments the dispatch counter.
func (m *Metrics) RecordDispatch(status string) {
	m.DispatchesTotal.WithLabelValues(status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDispatchDuration records a reply send duration.
func (m *Metrics) ObserveDispatchDuration(seconds float64) {
	m.DispatchDuration.Observe(seconds)
}

// SetRulesActive sets the configured rule count.
func (m *Metrics) SetRulesActive(count float64) {
	m.RulesActive.Set(count)
}

// RecordPollCycle increments the poll cycle counter.
func (m *Metrics) RecordPollCycle() {
	m.PollCyclesTotal.Inc()
}
