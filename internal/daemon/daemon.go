package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/tasks"
)

// TaskManager is the workflow manager as seen by the daemon.
type TaskManager interface {
	Start(ctx context.Context) error
	Stop()
	Cleanup(ctx context.Context, maxAge time.Duration) tasks.CleanupResult
}

// Service is an attached component started after the manager.
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Status represents daemon runtime information.
type Status struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	LockPath  string    `json:"lock_path"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Daemon owns the process lifecycle.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  TaskManager
	services []Service
	logPath  string
	now      func() time.Time

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	started   []Service
	wg        sync.WaitGroup
}

// Option customizes the daemon.
type Option func(*Daemon)

// WithService attaches a component started after the workflow manager.
func WithService(svc Service) Option {
	return func(d *Daemon) {
		if svc != nil {
			d.services = append(d.services, svc)
		}
	}
}

// WithCurrentLog excludes the active log file from retention.
func WithCurrentLog(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon around manager.
func New(cfg *config.Config, manager TaskManager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  manager,
		now:      time.Now,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the lock, then starts the manager, the attached services
// and the retention loop. A service that fails to start stops everything
// started before it.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another minutes daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.started = d.started[:0]
	for _, svc := range d.services {
		if err := svc.Start(runCtx); err != nil {
			d.stopServices()
			d.manager.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start service: %w", err)
		}
		d.started = append(d.started, svc)
	}

	d.cancel = cancel
	d.startedAt = d.now().UTC()
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.retentionLoop(runCtx)
	}()

	d.logger.Info("minutes daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.Int("services", len(d.started)),
	)
	return nil
}

// Stop stops services in reverse start order, then the manager, and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.stopServices()
	d.manager.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
			logging.Error(err),
		)
	}
	d.running.Store(false)
	d.logger.Info("minutes daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

func (d *Daemon) stopServices() {
	for i := len(d.started) - 1; i >= 0; i-- {
		d.started[i].Stop()
	}
	d.started = d.started[:0]
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		LockPath:  d.lockPath,
		StartedAt: d.startedAt,
	}
}
