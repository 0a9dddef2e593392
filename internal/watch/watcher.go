// Package watch submits recordings dropped into the inbox directory.
//
// A file is submitted once it has been quiet (no create, write or rename
// events) for the configured settle time, so copies in progress are not
// picked up half written. Each path is submitted at most once per watcher
// lifetime; removing the file forgets it. Files already present when the
// watcher starts are left alone.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/pipeline"
	"minutes/internal/workflow"
)

const minPollInterval = 50 * time.Millisecond

// Submitter accepts recordings for analysis.
type Submitter interface {
	Submit(ctx context.Context, audioPath string, opts pipeline.Options) (string, error)
}

// Watcher monitors the inbox directory.
type Watcher struct {
	dir     string
	settle  time.Duration
	opts    pipeline.Options
	submit  Submitter
	logger  *slog.Logger
	now     func() time.Time
	pending map[string]time.Time
	seen    map[string]struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Option customizes the watcher.
type Option func(*Watcher)

// WithOptions overrides the pipeline options used for inbox submissions.
func WithOptions(opts pipeline.Options) Option {
	return func(w *Watcher) { w.opts = opts }
}

// New builds a watcher for paths.inbox_dir. An empty inbox disables it.
func New(cfg *config.Config, submit Submitter, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		opts:    pipeline.DefaultOptions(),
		submit:  submit,
		logger:  logging.NewComponentLogger(logger, "watch"),
		now:     time.Now,
		pending: make(map[string]time.Time),
		seen:    make(map[string]struct{}),
	}
	if cfg != nil {
		w.dir = cfg.Paths.InboxDir
		w.settle = time.Duration(cfg.Workflow.InboxSettleSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports whether an inbox directory is configured.
func (w *Watcher) Enabled() bool {
	return w.dir != ""
}

// Start begins watching. The loop ends when ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.Enabled() {
		w.logger.Info("inbox watcher disabled", logging.String(logging.FieldEventType, "watch_disabled"))
		return nil
	}
	if w.submit == nil {
		return errors.New("inbox watcher: no submitter")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("inbox watcher: create %s: %w", w.dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("inbox watcher: watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx, fsw, w.done)
	w.logger.Info("inbox watcher started",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("dir", w.dir),
		logging.Duration("settle", w.settle),
	)
	return nil
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	_ = fsw.Close()
	<-done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	poll := w.settle / 2
	if poll < minPollInterval {
		poll = minPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = fsw.Close()
			return
		case evt, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(evt)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "watch_error",
				logging.String(logging.FieldErrorHint, "check the inbox directory still exists"),
				logging.String(logging.FieldImpact, "some inbox files may be missed"),
				logging.Error(err),
			)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(evt fsnotify.Event) {
	if evt.Op&fsnotify.Remove != 0 {
		delete(w.pending, evt.Name)
		delete(w.seen, evt.Name)
		return
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if !workflow.IsAllowedFile(evt.Name) {
		return
	}
	if _, done := w.seen[evt.Name]; done {
		return
	}
	w.pending[evt.Name] = w.now()
}

// flush submits every pending file that has been quiet for the settle time.
func (w *Watcher) flush(ctx context.Context) {
	now := w.now()
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			// Renamed away or replaced by a directory.
			continue
		}
		w.seen[path] = struct{}{}
		id, err := w.submit.Submit(ctx, path, w.opts)
		if err != nil {
			logging.WarnWithContext(w.logger, "inbox submission rejected", "watch_submit_failed",
				logging.String(logging.FieldErrorHint, "check the file is a readable recording"),
				logging.String(logging.FieldImpact, "file will not be analyzed"),
				logging.String("file", filepath.Base(path)),
				logging.Error(err),
			)
			continue
		}
		w.logger.Info("inbox file submitted",
			logging.String(logging.FieldEventType, "watch_submitted"),
			logging.String(logging.FieldTaskID, id),
			logging.String("file", filepath.Base(path)),
		)
	}
}
