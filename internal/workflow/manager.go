package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"minutes/internal/config"
	"minutes/internal/language"
	"minutes/internal/logging"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/tasks"
)

// AllowedExtensions lists the recording formats accepted by Submit.
var AllowedExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg"}

// Runner is one pipeline instance as seen by the manager.
type Runner interface {
	Run(ctx context.Context, meetingID, audioPath string, opts pipeline.Options, progress pipeline.ProgressFunc) (*report.MeetingReport, error)
	Release() error
}

// Factory builds a Runner for a single task.
type Factory func(ctx context.Context, logger *slog.Logger) (Runner, error)

// Manager coordinates background task execution.
type Manager struct {
	registry *tasks.Registry
	factory  Factory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	taskLogs *TaskLogger
	sem      chan struct{}

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records task counters and run gauges.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithTaskLogger mirrors each run into its own log file.
func WithTaskLogger(tl *TaskLogger) ManagerOption {
	return func(mgr *Manager) { mgr.taskLogs = tl }
}

// NewManager constructs a workflow manager. The concurrency limit comes
// from workflow.max_concurrent_runs.
func NewManager(cfg *config.Config, registry *tasks.Registry, factory Factory, logger *slog.Logger, opts ...ManagerOption) *Manager {
	limit := 1
	if cfg != nil && cfg.Workflow.MaxConcurrentRuns > 0 {
		limit = cfg.Workflow.MaxConcurrentRuns
	}
	m := &Manager{
		registry: registry,
		factory:  factory,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		sem:      make(chan struct{}, limit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start enables submissions. Runs inherit ctx; cancelling it or calling
// Stop aborts in-flight runs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.factory == nil || m.registry == nil {
		return errors.New("workflow manager not configured")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.logger.Info("workflow manager started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("max_concurrent_runs", cap(m.sem)),
	)
	return nil
}

// Stop cancels in-flight runs and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// Submit validates the request, creates a task and schedules its run.
func (m *Manager) Submit(ctx context.Context, audioPath string, opts pipeline.Options) (string, error) {
	if err := ValidateSubmission(audioPath, opts); err != nil {
		return "", err
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return "", services.Wrap(services.ErrConfiguration, "", "submit", "workflow manager not running", nil)
	}
	runCtx := m.ctx
	id := m.registry.CreateTask(audioPath)
	m.wg.Add(1)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TasksSubmitted.Inc()
	}
	logging.WithContext(services.WithTaskID(ctx, id), m.logger).Info("task submitted",
		logging.String(logging.FieldEventType, "task_submitted"),
		logging.String("file", audioPath),
	)

	go m.execute(runCtx, id, audioPath, opts)
	return id, nil
}

// Status returns the task snapshot for id.
func (m *Manager) Status(id string) (tasks.Task, bool) {
	return m.registry.GetStatus(id)
}

// Result loads the stored report for id. Unknown ids and tasks without a
// stored report match services.ErrNotFound.
func (m *Manager) Result(ctx context.Context, id string) (*report.MeetingReport, error) {
	return m.registry.GetResult(ctx, id)
}

// List returns every known task, newest first.
func (m *Manager) List() []tasks.Task {
	return m.registry.List()
}

// Cleanup drops finished tasks and stored results older than maxAge.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) tasks.CleanupResult {
	return m.registry.CleanupOlderThan(ctx, maxAge)
}

// ValidateSubmission checks a recording path and run options before any
// task is created.
func ValidateSubmission(audioPath string, opts pipeline.Options) error {
	audioPath = strings.TrimSpace(audioPath)
	if audioPath == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "audio path required", nil)
	}
	if !allowedExtension(audioPath) {
		return services.Wrap(services.ErrValidation, "", "submit",
			fmt.Sprintf("unsupported file type %q (allowed: %s)", filepath.Ext(audioPath), strings.Join(AllowedExtensions, ", ")), nil)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrValidation, "", "submit", "audio file not found: "+audioPath, nil)
		}
		return services.Wrap(services.ErrValidation, "", "submit", "", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "", "submit", "audio path is a directory", nil)
	}
	if opts.NumSpeakers < 0 {
		return services.Wrap(services.ErrValidation, "", "submit", "num_speakers must not be negative", nil)
	}
	if hint := strings.TrimSpace(opts.Language); hint != "" && !language.Known(hint) {
		return services.Wrap(services.ErrValidation, "", "submit", fmt.Sprintf("unknown language %q", hint), nil)
	}
	return nil
}

// allowedExtension compares case-insensitively.
func allowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// IsAllowedFile is used by the inbox watcher to filter events.
func IsAllowedFile(path string) bool {
	return allowedExtension(path)
}
