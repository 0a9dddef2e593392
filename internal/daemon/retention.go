package daemon

import (
	"context"
	"path/filepath"
	"time"

	"minutes/internal/logging"
	"minutes/internal/tasks"
)

// Sweep runs one retention pass: finished tasks and stored reports older
// than the result retention, uploads of the same age, logs older than the
// log retention, and scratch directories abandoned by crashed runs.
func (d *Daemon) Sweep(ctx context.Context) tasks.CleanupResult {
	var result tasks.CleanupResult
	if days := d.cfg.Workflow.ResultRetentionDays; days > 0 {
		result = d.manager.Cleanup(ctx, d.cfg.ResultRetention())
		uploads := logging.CleanupOldLogs(d.logger, days,
			logging.RetentionTarget{Dir: d.cfg.UploadsDir(), Pattern: "*"},
		)
		if result.TasksRemoved > 0 || result.ResultsRemoved > 0 || uploads > 0 {
			d.logger.Info("retention sweep",
				logging.String(logging.FieldEventType, "retention_sweep"),
				logging.Int("tasks_removed", result.TasksRemoved),
				logging.Int("results_removed", result.ResultsRemoved),
				logging.Int("uploads_removed", uploads),
			)
		}
	}

	var exclude []string
	if d.logPath != "" {
		exclude = append(exclude, d.logPath)
	}
	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: d.cfg.Paths.LogDir, Pattern: "minutesd-*.log", Exclude: exclude},
		logging.RetentionTarget{Dir: filepath.Join(d.cfg.Paths.LogDir, "tasks"), Pattern: "*.log"},
	)
	CleanStaleScratch(d.cfg.WorkDir(), scratchMaxAge, d.now(), d.logger)
	return result
}

func (d *Daemon) retentionLoop(ctx context.Context) {
	d.Sweep(ctx)
	interval := d.cfg.CleanupInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}
