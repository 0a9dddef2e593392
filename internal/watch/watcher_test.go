package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"minutes/internal/pipeline"
	"minutes/internal/testsupport"
	"minutes/internal/watch"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	paths []string
	opts  []pipeline.Options
	seen  chan string
	err   error
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{seen: make(chan string, 16)}
}

func (r *recordingSubmitter) Submit(_ context.Context, path string, opts pipeline.Options) (string, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.opts = append(r.opts, opts)
	err := r.err
	r.mu.Unlock()
	r.seen <- path
	if err != nil {
		return "", err
	}
	return "task_watch", nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func waitForSubmission(t *testing.T, sub *recordingSubmitter) string {
	t.Helper()
	select {
	case path := <-sub.seen:
		return path
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbox submission")
		return ""
	}
}

func TestWatcherSubmitsAllowedFilesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	sub := newRecordingSubmitter()
	w := watch.New(cfg, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, "notes.txt"), 10)
	target := filepath.Join(cfg.Paths.InboxDir, "standup.WAV")
	testsupport.WriteRecording(t, target, 0.1)

	if got := waitForSubmission(t, sub); got != target {
		t.Fatalf("submitted %q, want %q", got, target)
	}

	// Touching the file again must not resubmit it.
	if err := os.WriteFile(target, []byte("more"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := sub.count(); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
	sub.mu.Lock()
	opts := sub.opts[0]
	sub.mu.Unlock()
	if opts != pipeline.DefaultOptions() {
		t.Fatalf("expected default options, got %+v", opts)
	}
}

func TestWatcherWaitsForSettleTime(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	cfg.Workflow.InboxSettleSeconds = 1
	sub := newRecordingSubmitter()
	w := watch.New(cfg, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	start := time.Now()
	testsupport.WriteRecording(t, filepath.Join(cfg.Paths.InboxDir, "retro.mp3"), 0.1)
	waitForSubmission(t, sub)
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("submitted after %s, before the settle time", elapsed)
	}
}

func TestWatcherKeepsRunningAfterRejectedSubmission(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	sub := newRecordingSubmitter()
	sub.err = errors.New("too short")
	w := watch.New(cfg, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	testsupport.WriteRecording(t, filepath.Join(cfg.Paths.InboxDir, "a.flac"), 0.1)
	waitForSubmission(t, sub)
	testsupport.WriteRecording(t, filepath.Join(cfg.Paths.InboxDir, "b.ogg"), 0.1)
	waitForSubmission(t, sub)
}

func TestWatcherDisabledWithoutInbox(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := watch.New(cfg, newRecordingSubmitter(), nil)
	if w.Enabled() {
		t.Fatal("watcher should be disabled without an inbox dir")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	w := watch.New(cfg, newRecordingSubmitter(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after cancellation")
	}
}
