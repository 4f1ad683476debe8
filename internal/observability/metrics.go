package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the evaluation pipeline and daemon.
type Metrics struct {
	registry          *prometheus.Registry
	Generations       *prometheus.CounterVec
	GenFallbacks      *prometheus.CounterVec
	ParseFailures     *prometheus.CounterVec
	FallbackActivated *prometheus.CounterVec
	FallbackRecovered *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	IterationDuration *prometheus.HistogramVec
	ActiveSession     *prometheus.GaugeVec
	TransportErrs     *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_generations_total",
		Help: "Structured generation calls by transport and format",
	}, []string{"transport", "format"})

	genFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_generation_fallbacks_total",
		Help: "Transport fallbacks inside the structured generation adapter by reason",
	}, []string{"reason"})

	parseFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_parse_failures_total",
		Help: "Unrecoverable parse failures by error kind",
	}, []string{"kind"})

	fbActivated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_fallback_activations_total",
		Help: "Deterministic fallback tier activations",
	}, []string{"tier"})

	fbRecovered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_fallback_recoveries_total",
		Help: "Deterministic fallback recoveries (pass after raw failure)",
	}, []string{"tier"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_runs_total",
		Help: "Finished evaluation runs by outcome",
	}, []string{"outcome"})

	iterations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oraclebench_iteration_duration_seconds",
		Help:    "Duration of one generate/parse/validate iteration",
		Buckets: prometheus.DefBuckets,
	}, []string{"scenario"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oraclebench_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oraclebench_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(generations, genFallbacks, parseFailures, fbActivated, fbRecovered, runs, iterations, active, trErrors)

	return &Metrics{
		registry:          reg,
		Generations:       generations,
		GenFallbacks:      genFallbacks,
		ParseFailures:     parseFailures,
		FallbackActivated: fbActivated,
		FallbackRecovered: fbRecovered,
		RunsTotal:         runs,
		IterationDuration: iterations,
		ActiveSession:     active,
		TransportErrs:     trErrors,
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGeneration counts one structured generation result.
func (m *Metrics) RecordGeneration(transport, format string, fellBack bool, reason string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(transport, format).Inc()
	if fellBack {
		m.GenFallbacks.WithLabelValues(reason).Inc()
	}
}

// RecordParseFailure counts one unrecoverable parse failure.
func (m *Metrics) RecordParseFailure(kind string) {
	if m == nil {
		return
	}
	m.ParseFailures.WithLabelValues(kind).Inc()
}

// RecordRun counts a finished run outcome ("ok" or "fail").
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordIteration observes one iteration's duration.
func (m *Metrics) RecordIteration(scenario string, d time.Duration) {
	if m == nil {
		return
	}
	m.IterationDuration.WithLabelValues(scenario).Observe(d.Seconds())
}

// RecordFallbackTier counts a deterministic fallback tier activation and,
// when it recovered a failing tree, the recovery.
func (m *Metrics) RecordFallbackTier(tier string, recovered bool) {
	if m == nil {
		return
	}
	m.FallbackActivated.WithLabelValues(tier).Inc()
	if recovered {
		m.FallbackRecovered.WithLabelValues(tier).Inc()
	}
}

// IncActiveSessions tracks one more live streaming session.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions tracks one finished streaming session.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError counts a daemon transport error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
