// Package daemonrun assembles and runs the minutesd process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"minutes/internal/analysis"
	"minutes/internal/api"
	"minutes/internal/config"
	"minutes/internal/daemon"
	"minutes/internal/deps"
	"minutes/internal/history"
	"minutes/internal/logging"
	"minutes/internal/metrics"
	"minutes/internal/preflight"
	"minutes/internal/resultstore"
	"minutes/internal/tasks"
	"minutes/internal/watch"
	"minutes/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Version  string
}

// Run starts the minutes daemon and blocks until SIGINT/SIGTERM or ctx is
// cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("minutesd-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update minutesd.log link: %v\n", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := filepath.Join(cfg.Paths.LogDir, "minutesd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	m := metrics.New()
	results, err := resultstore.Open(cfg.ResultsDir())
	if err != nil {
		logger.Error("open result store", logging.Error(err))
		return err
	}
	registry := tasks.NewRegistry(workflow.CountResultFailures(results, m), logger)

	var store analysis.HistoryStore
	if cfg.Analysis.EnableContext {
		hist, err := history.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "history store unavailable", "history_open_failed",
				logging.String(logging.FieldErrorHint, "check analysis.history_path permissions"),
				logging.String(logging.FieldImpact, "historical context phase will be skipped"),
				logging.Error(err),
			)
		} else {
			defer hist.Close()
			store = workflow.CountHistoryFailures(hist, m)
		}
	}

	factory := workflow.NewPipelineFactory(workflow.Shared{
		Config:  cfg,
		LLM:     workflow.NewCompleter(cfg),
		History: store,
		Metrics: m,
	})
	manager := workflow.NewManager(cfg, registry, factory, logger,
		workflow.WithMetrics(m),
		workflow.WithTaskLogger(workflow.NewTaskLogger(cfg)),
	)

	apiServer := api.NewServer(cfg, manager, logger, api.WithMetrics(m), api.WithVersion(opts.Version))
	watcher := watch.New(cfg, manager, logger)

	d, err := daemon.New(cfg, manager, logger,
		daemon.WithService(apiServer),
		daemon.WithService(watcher),
		daemon.WithCurrentLog(logPath),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("minutes daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "minutesd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logDependencySnapshot records binary availability and service readiness
// once at startup. Failures are warnings: the daemon still starts.
func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", cfg.LLM.APIKey != ""),
		logging.Bool("hf_token_present", cfg.Transcription.HFToken != ""),
		logging.Bool("emotion_enabled", cfg.Emotion.Enabled),
		logging.Bool("context_enabled", cfg.Analysis.EnableContext),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(strings.ToLower(status.Name)+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required binary missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install "+missing.Command+" or fix its path in the config"),
			logging.String(logging.FieldImpact, missing.Description),
		)
	}
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run minutes check for details"),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail"),
		)
	}
}
