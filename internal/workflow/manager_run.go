package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"minutes/internal/logging"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/tasks"
)

const cancelledMessage = "processing cancelled: daemon shutting down"

// persistTimeout bounds the result save once a run has produced a report.
const persistTimeout = 30 * time.Second

func (m *Manager) execute(ctx context.Context, id, audioPath string, opts pipeline.Options) {
	defer m.wg.Done()

	ctx = services.WithTaskID(ctx, id)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger, closeLog := m.runLogger(ctx, id)
	defer closeLog()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.fail(logger, id, cancelledMessage)
		return
	}
	defer func() { <-m.sem }()

	if m.metrics != nil {
		m.metrics.ActiveRuns.Inc()
		defer m.metrics.ActiveRuns.Dec()
	}
	m.registry.UpdateStatus(id, tasks.StatusProcessing, tasks.WithProgress(0))

	runner, err := m.factory(ctx, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "pipeline construction failed", "pipeline_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the configuration and service endpoints"),
		)
		m.fail(logger, id, "pipeline setup failed: "+err.Error())
		return
	}
	defer func() {
		if err := runner.Release(); err != nil {
			logger.Warn("pipeline release failed",
				logging.String(logging.FieldEventType, "pipeline_release_failed"),
				logging.Error(err),
			)
		}
	}()

	rep, err := runner.Run(ctx, id, audioPath, opts, func(progress int) {
		m.registry.UpdateStatus(id, tasks.StatusProcessing, tasks.WithProgress(progress))
	})
	if err != nil {
		message := err.Error()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			message = cancelledMessage
		}
		logging.WarnWithContext(logger, "task failed", "task_failed",
			logging.String("kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "see the task log for the failing stage"),
			logging.String(logging.FieldImpact, "no report was produced"),
		)
		m.fail(logger, id, message)
		return
	}

	m.complete(ctx, logger, id, rep)
}

// complete saves the report and marks the task completed. The two steps are
// independent: a failed save leaves the task completed. The save detaches
// from ctx so a shutdown racing the end of a run still persists its report.
func (m *Manager) complete(ctx context.Context, logger *slog.Logger, id string, rep *report.MeetingReport) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	m.registry.SaveResult(saveCtx, id, rep)
	m.registry.UpdateStatus(id, tasks.StatusCompleted, tasks.WithProgress(100))
	if m.metrics != nil {
		m.metrics.TasksFinished.WithLabelValues(string(tasks.StatusCompleted)).Inc()
		m.metrics.RealtimeFactor.Observe(rep.RealtimeFactor)
	}
	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_completed"),
		logging.Int("action_items", rep.ActionItemCount()),
		logging.Float64("realtime_factor", rep.RealtimeFactor),
	)
}

func (m *Manager) fail(logger *slog.Logger, id, message string) {
	m.registry.UpdateStatus(id, tasks.StatusFailed, tasks.WithError(message))
	if m.metrics != nil {
		m.metrics.TasksFinished.WithLabelValues(string(tasks.StatusFailed)).Inc()
	}
	logger.Debug("task marked failed", logging.String("error_message", message))
}

func (m *Manager) runLogger(ctx context.Context, id string) (*slog.Logger, func()) {
	base := logging.WithContext(ctx, m.logger)
	if m.taskLogs == nil {
		return base, func() {}
	}
	handler, closer, err := m.taskLogs.Open(id)
	if err != nil {
		base.Warn("task log unavailable",
			logging.String(logging.FieldEventType, "task_log_unavailable"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run output only appears in the daemon log"),
		)
		return base, func() {}
	}
	logger := logging.WithContext(ctx, logging.TeeLogger(m.logger, handler))
	return logger, func() { _ = closer.Close() }
}
