// Package metrics holds the Prometheus instruments for task execution,
// pipeline stages and analysis phases. Everything registers on a private
// registry served by the daemon API at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minutes/internal/services"
)

const namespace = "minutes"

// Metrics groups every instrument on one registry.
type Metrics struct {
	registry *prometheus.Registry

	TasksSubmitted      prometheus.Counter
	TasksFinished       *prometheus.CounterVec
	ActiveRuns          prometheus.Gauge
	StageDuration       *prometheus.HistogramVec
	PhaseOutcomes       *prometheus.CounterVec
	PhaseDuration       *prometheus.HistogramVec
	RealtimeFactor      prometheus.Histogram
	PersistenceFailures *prometheus.CounterVec
}

// New registers the instruments plus the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Recordings accepted for processing",
		}),
		TasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status",
		}, []string{"status"}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Pipeline runs currently executing",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2.5, 12),
		}, []string{"stage", "outcome"}),
		PhaseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_phase_total",
			Help:      "Analysis phase results",
		}, []string{"phase", "outcome"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_phase_duration_seconds",
			Help:      "Time spent in each analysis phase",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"phase"}),
		RealtimeFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "realtime_factor",
			Help:      "Processing time divided by recording length",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed writes to the result or history store",
		}, []string{"target"}),
	}
	registry.MustRegister(
		m.TasksSubmitted,
		m.TasksFinished,
		m.ActiveRuns,
		m.StageDuration,
		m.PhaseOutcomes,
		m.PhaseDuration,
		m.RealtimeFactor,
		m.PersistenceFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage matches pipeline.StageObserver.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

// ObservePhase matches analysis.PhaseObserver.
func (m *Metrics) ObservePhase(phase string, succeeded bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !succeeded {
		result = "failure"
	}
	m.PhaseOutcomes.WithLabelValues(phase, result).Inc()
	m.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// PersistenceFailed counts a failed write to target ("results" or "history").
func (m *Metrics) PersistenceFailed(target string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(target).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return services.Kind(err)
}
