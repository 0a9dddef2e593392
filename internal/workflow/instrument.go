package workflow

import (
	"context"

	"minutes/internal/analysis"
	"minutes/internal/history"
	"minutes/internal/metrics"
	"minutes/internal/report"
	"minutes/internal/tasks"
)

type countedResults struct {
	tasks.ResultStore
	metrics *metrics.Metrics
}

// CountResultFailures counts failed saves on the persistence_failures metric.
func CountResultFailures(store tasks.ResultStore, m *metrics.Metrics) tasks.ResultStore {
	if m == nil {
		return store
	}
	return countedResults{ResultStore: store, metrics: m}
}

func (c countedResults) Save(ctx context.Context, id string, rep *report.MeetingReport) error {
	err := c.ResultStore.Save(ctx, id, rep)
	if err != nil {
		c.metrics.PersistenceFailed("results")
	}
	return err
}

type countedHistory struct {
	analysis.HistoryStore
	metrics *metrics.Metrics
}

// CountHistoryFailures counts failed history writes.
func CountHistoryFailures(store analysis.HistoryStore, m *metrics.Metrics) analysis.HistoryStore {
	if m == nil || store == nil {
		return store
	}
	return countedHistory{HistoryStore: store, metrics: m}
}

func (c countedHistory) Add(ctx context.Context, text string, meta history.Metadata) error {
	err := c.HistoryStore.Add(ctx, text, meta)
	if err != nil {
		c.metrics.PersistenceFailed("history")
	}
	return err
}
