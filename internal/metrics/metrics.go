package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taste"

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	signalsIngested   *prometheus.CounterVec
	signalsRejected   *prometheus.CounterVec
	gatingOutcomes    *prometheus.CounterVec
	analyzerFallbacks *prometheus.CounterVec
	fetchFailures     prometheus.Counter
	recomputeSeconds  prometheus.Histogram
	calibrationAcc    prometheus.Histogram
	calibrations      prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signalsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_ingested_total",
			Help: "Signals appended to the log, by type.",
		}, []string{"type"}),
		signalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_rejected_total",
			Help: "Signals rejected by validation, by field.",
		}, []string{"field"}),
		gatingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gating_outcomes_total",
			Help: "Gate decisions, by status.",
		}, []string{"status"}),
		analyzerFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "analyzer_fallbacks_total",
			Help: "Content analyses answered by the heuristic, by reason.",
		}, []string{"reason"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audience_fetch_failures_total",
			Help: "Audience refreshes that failed after retries.",
		}),
		recomputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recompute_duration_seconds",
			Help:    "Time to replay a profile's log and commit a genome version.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		calibrationAcc: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "validation_accuracy",
			Help:    "Prediction accuracy of validated posts (0-100).",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		calibrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "calibrations_total",
			Help: "Calibration signals written.",
		}),
	}
	m.registry.MustRegister(
		m.signalsIngested, m.signalsRejected, m.gatingOutcomes, m.analyzerFallbacks,
		m.fetchFailures, m.recomputeSeconds, m.calibrationAcc, m.calibrations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SignalIngested(kind string)          { m.signalsIngested.WithLabelValues(kind).Inc() }
func (m *Metrics) SignalRejected(field string)         { m.signalsRejected.WithLabelValues(field).Inc() }
func (m *Metrics) GatingDecided(status string)         { m.gatingOutcomes.WithLabelValues(status).Inc() }
func (m *Metrics) AnalyzerFallback(reason string)      { m.analyzerFallbacks.WithLabelValues(reason).Inc() }
func (m *Metrics) FetchFailed()                        { m.fetchFailures.Inc() }
func (m *Metrics) RecomputeDuration(d time.Duration)   { m.recomputeSeconds.Observe(d.Seconds()) }
func (m *Metrics) ValidationAccuracy(accuracy float64) { m.calibrationAcc.Observe(accuracy) }
func (m *Metrics) Calibrated()                         { m.calibrations.Inc() }
