package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"minutes/internal/logging"
	"minutes/internal/report"
	"minutes/internal/services"
)

// ResultStore persists finished reports.
type ResultStore interface {
	Save(ctx context.Context, id string, rep *report.MeetingReport) error
	Load(ctx context.Context, id string) (*report.MeetingReport, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type entry struct {
	mu   sync.Mutex
	task Task
}

// Registry is the in-memory task table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	results ResultStore
	logger  *slog.Logger
	now     func() time.Time
	newID   func(time.Time) string
}

// Option customizes the registry.
type Option func(*Registry)

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRegistry constructs an empty registry backed by results.
func NewRegistry(results ResultStore, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		results: results,
		logger:  logging.NewComponentLogger(logger, "tasks"),
		now:     time.Now,
		newID:   NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateTask registers a pending task for fileRef and returns its id.
func (r *Registry) CreateTask(fileRef string) string {
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID(now)
	for {
		if _, exists := r.entries[id]; !exists {
			break
		}
		id = NewID(now)
	}
	r.entries[id] = &entry{task: Task{
		ID:        id,
		FileRef:   fileRef,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	r.logger.Info("task created", logging.String(logging.FieldTaskID, id), logging.String("file", fileRef))
	return id
}

// UpdateOption adjusts an UpdateStatus call.
type UpdateOption func(*Task)

// WithProgress sets the progress percentage.
func WithProgress(progress int) UpdateOption {
	return func(t *Task) { t.Progress = progress }
}

// WithError records a failure message.
func WithError(message string) UpdateOption {
	return func(t *Task) { t.Error = message }
}

// UpdateStatus moves task id to status. Unknown ids and updates to finished
// tasks are logged and ignored.
func (r *Registry) UpdateStatus(id string, status Status, opts ...UpdateOption) {
	e := r.lookup(id)
	if e == nil {
		logging.WarnWithContext(r.logger, "status update for unknown task",
			"task_unknown",
			logging.String(logging.FieldTaskID, id),
			logging.String("status", string(status)),
			logging.String(logging.FieldErrorHint, "task may have been cleaned up"),
			logging.String(logging.FieldImpact, "update ignored"),
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task.Status.IsTerminal() {
		logging.WarnWithContext(r.logger, "status update for finished task",
			"task_terminal_update",
			logging.String(logging.FieldTaskID, id),
			logging.String("current", string(e.task.Status)),
			logging.String("requested", string(status)),
			logging.String(logging.FieldErrorHint, "late update from a cancelled run"),
			logging.String(logging.FieldImpact, "update ignored"),
		)
		return
	}
	e.task.Status = status
	for _, opt := range opts {
		opt(&e.task)
	}
	e.task.UpdatedAt = r.now().UTC()
	if status.IsTerminal() {
		r.logger.Info("task finished",
			logging.String(logging.FieldTaskID, id),
			logging.String("status", string(status)),
			logging.Int("progress", e.task.Progress),
		)
	}
}

// GetStatus returns a copy of the task.
func (r *Registry) GetStatus(id string) (Task, bool) {
	e := r.lookup(id)
	if e == nil {
		return Task{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task, true
}

// List returns copies of all tasks, newest first.
func (r *Registry) List() []Task {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.task)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SaveResult persists rep for id. Failures are logged, never returned.
func (r *Registry) SaveResult(ctx context.Context, id string, rep *report.MeetingReport) {
	if r.results == nil {
		logging.WarnWithContext(r.logger, "no result store configured",
			"result_store_missing",
			logging.String(logging.FieldTaskID, id),
			logging.String(logging.FieldImpact, "result is not retrievable"),
		)
		return
	}
	if err := r.results.Save(ctx, id, rep); err != nil {
		logging.ErrorWithContext(r.logger, "result persistence failed",
			"result_save_failed",
			logging.String(logging.FieldTaskID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the results directory permissions and free space"),
			logging.Alert("result_lost"),
		)
		return
	}
	r.logger.Debug("result saved", logging.String(logging.FieldTaskID, id))
}

// GetResult loads the persisted report for id. A missing report matches
// services.ErrNotFound.
func (r *Registry) GetResult(ctx context.Context, id string) (*report.MeetingReport, error) {
	if r.results == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get result", "no result store", nil)
	}
	rep, err := r.results.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get result", "no result for "+id, nil)
	}
	return rep, nil
}

// CleanupOlderThan drops finished tasks created before now-maxAge and prunes
// stored results of the same age. Active tasks are kept.
func (r *Registry) CleanupOlderThan(ctx context.Context, maxAge time.Duration) CleanupResult {
	cutoff := r.now().UTC().Add(-maxAge)
	var result CleanupResult

	r.mu.Lock()
	for id, e := range r.entries {
		e.mu.Lock()
		remove := e.task.Status.IsTerminal() && e.task.CreatedAt.Before(cutoff)
		e.mu.Unlock()
		if remove {
			delete(r.entries, id)
			result.TasksRemoved++
		}
	}
	r.mu.Unlock()

	if r.results != nil {
		removed, err := r.results.PruneOlderThan(ctx, cutoff)
		result.ResultsRemoved = removed
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(r.logger, "result pruning failed",
				"result_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the results directory permissions"),
			)
		}
	}
	r.logger.Info("task cleanup finished",
		logging.Int("tasks_removed", result.TasksRemoved),
		logging.Int("results_removed", result.ResultsRemoved),
		logging.Duration("max_age", maxAge),
	)
	return result
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}
