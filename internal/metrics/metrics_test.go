package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"minutes/internal/services"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metricLoop
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			if metric.GetHistogram() != nil {
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestObserveStageLabelsOutcome(t *testing.T) {
	m := New()
	m.ObserveStage("diarize", time.Second, nil)
	m.ObserveStage("diarize", time.Second, services.Wrap(services.ErrExternalTool, "diarize", "request", "", errors.New("down")))

	if got := counterValue(t, m, "minutes_stage_duration_seconds", map[string]string{"stage": "diarize", "outcome": "success"}); got != 1 {
		t.Fatalf("expected one successful diarize sample, got %v", got)
	}
	if got := counterValue(t, m, "minutes_stage_duration_seconds", map[string]string{"stage": "diarize", "outcome": "external_tool"}); got != 1 {
		t.Fatalf("expected one failed diarize sample, got %v", got)
	}
}

func TestObservePhaseAndPersistence(t *testing.T) {
	m := New()
	m.ObservePhase("sentiment", false, time.Second)
	m.ObservePhase("sentiment", true, time.Second)
	m.ObservePhase("sentiment", true, time.Second)
	m.PersistenceFailed("history")

	if got := counterValue(t, m, "minutes_analysis_phase_total", map[string]string{"phase": "sentiment", "outcome": "success"}); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := counterValue(t, m, "minutes_persistence_failures_total", map[string]string{"target": "history"}); got != 1 {
		t.Fatalf("expected 1 persistence failure, got %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.TasksSubmitted.Inc()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "minutes_tasks_submitted_total 1") {
		t.Fatalf("expected submitted counter in output, got:\n%s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("fuse", 0, nil)
	m.ObservePhase("actions", true, 0)
	m.PersistenceFailed("results")
}
