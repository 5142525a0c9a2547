package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	draftActions      *prometheus.CounterVec
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	snapshotCaptures  *prometheus.CounterVec
	handoffSends      *prometheus.CounterVec
	handoffPlans      *prometheus.CounterVec
	handoffImports    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drafts_api_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drafts_api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		draftActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_actions_total",
			Help: "Draft actions by name and outcome (applied, noop, stale, rejected).",
		}, []string{"action", "outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_generations_total",
			Help: "Generator calls by outcome.",
		}, []string{"tool", "outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drafts_generation_duration_seconds",
			Help:    "Generator call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		snapshotCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_snapshot_captures_total",
			Help: "Snapshots captured by persist status.",
		}, []string{"persist_status"}),
		handoffSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_handoff_sends_total",
			Help: "Handoff envelopes written by source and kind.",
		}, []string{"source", "kind"}),
		handoffPlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_handoff_plans_total",
			Help: "Handoff plans by block reason (none when applicable).",
		}, []string{"block"}),
		handoffImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_handoff_imports_total",
			Help: "Handoff apply attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.draftActions, m.generations, m.generationLatency,
		m.snapshotCaptures, m.handoffSends, m.handoffPlans, m.handoffImports,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncDraftAction(action, outcome string) {
	if m == nil {
		return
	}
	m.draftActions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveGeneration(tool, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	m.generations.WithLabelValues(tool, outcome).Inc()
	m.generationLatency.Observe(dur.Seconds())
}

func (m *Metrics) IncSnapshotCapture(persistStatus string) {
	if m == nil {
		return
	}
	m.snapshotCaptures.WithLabelValues(persistStatus).Inc()
}

func (m *Metrics) IncHandoffSend(source, kind string) {
	if m == nil {
		return
	}
	m.handoffSends.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) IncHandoffPlan(block string) {
	if m == nil {
		return
	}
	if block == "" {
		block = "none"
	}
	m.handoffPlans.WithLabelValues(block).Inc()
}

func (m *Metrics) IncHandoffImport(outcome string) {
	if m == nil {
		return
	}
	m.handoffImports.WithLabelValues(outcome).Inc()
}
