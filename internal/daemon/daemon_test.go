package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minutes/internal/daemon"
	"minutes/internal/tasks"
	"minutes/internal/testsupport"
)

type fakeManager struct {
	mu       sync.Mutex
	events   *[]string
	cleanups []time.Duration
	startErr error
}

func (f *fakeManager) Start(context.Context) error {
	f.record("manager start")
	return f.startErr
}

func (f *fakeManager) Stop() { f.record("manager stop") }

func (f *fakeManager) Cleanup(_ context.Context, maxAge time.Duration) tasks.CleanupResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, maxAge)
	return tasks.CleanupResult{TasksRemoved: 1}
}

func (f *fakeManager) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.events = append(*f.events, event)
}

func (f *fakeManager) cleanupAges() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.cleanups...)
}

type fakeService struct {
	name     string
	manager  *fakeManager
	startErr error
}

func (s *fakeService) Start(context.Context) error {
	s.manager.record(s.name + " start")
	return s.startErr
}

func (s *fakeService) Stop() { s.manager.record(s.name + " stop") }

func TestStartStopOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var events []string
	mgr := &fakeManager{events: &events}
	d, err := daemon.New(cfg, mgr, nil,
		daemon.WithService(&fakeService{name: "api", manager: mgr}),
		daemon.WithService(&fakeService{name: "watch", manager: mgr}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if !status.Running || status.LockPath != cfg.LockPath() || status.StartedAt.IsZero() {
		t.Fatalf("unexpected status %+v", status)
	}
	d.Stop()
	if d.Status().Running {
		t.Fatal("daemon should not be running after Stop")
	}

	mgr.mu.Lock()
	got := strings.Join(events, ",")
	mgr.mu.Unlock()
	want := "manager start,api start,watch start,watch stop,api stop,manager stop"
	if got != want {
		t.Fatalf("unexpected lifecycle order:\n got %s\nwant %s", got, want)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var events []string
	first, _ := daemon.New(cfg, &fakeManager{events: &events}, nil)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	second, _ := daemon.New(cfg, &fakeManager{events: &events}, nil)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestServiceStartFailureRollsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var events []string
	mgr := &fakeManager{events: &events}
	d, _ := daemon.New(cfg, mgr, nil,
		daemon.WithService(&fakeService{name: "api", manager: mgr}),
		daemon.WithService(&fakeService{name: "watch", manager: mgr, startErr: errors.New("inotify limit")}),
	)
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}
	if d.Status().Running {
		t.Fatal("daemon should not report running after a failed start")
	}
	mgr.mu.Lock()
	got := strings.Join(events, ",")
	mgr.mu.Unlock()
	if got != "manager start,api start,watch start,api stop,manager stop" {
		t.Fatalf("unexpected rollback order %s", got)
	}

	// The lock must be free again.
	retry, _ := daemon.New(cfg, &fakeManager{events: &events}, nil)
	if err := retry.Start(context.Background()); err != nil {
		t.Fatalf("lock not released after failed start: %v", err)
	}
	retry.Stop()
}

func TestSweepRemovesExpiredFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ResultRetentionDays = 7
	cfg.Logging.RetentionDays = 3
	var events []string
	mgr := &fakeManager{events: &events}

	current := filepath.Join(cfg.Paths.LogDir, "minutesd-current.log")
	d, _ := daemon.New(cfg, mgr, nil, daemon.WithCurrentLog(current))

	old := time.Now().Add(-10 * 24 * time.Hour)
	expired := []string{
		filepath.Join(cfg.UploadsDir(), "abc.wav"),
		filepath.Join(cfg.Paths.LogDir, "tasks", "task_1.log"),
		filepath.Join(cfg.Paths.LogDir, "minutesd-20260101.log"),
	}
	for _, path := range append(expired, current) {
		testsupport.WriteFile(t, path, 16)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	fresh := filepath.Join(cfg.UploadsDir(), "fresh.wav")
	testsupport.WriteFile(t, fresh, 16)

	result := d.Sweep(context.Background())
	if result.TasksRemoved != 1 {
		t.Fatalf("unexpected cleanup result %+v", result)
	}
	if ages := mgr.cleanupAges(); len(ages) != 1 || ages[0] != 7*24*time.Hour {
		t.Fatalf("unexpected cleanup ages %v", ages)
	}
	for _, path := range expired {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", path)
		}
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatalf("active log should be kept: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh upload should be kept: %v", err)
	}
}

func TestSweepSkipsResultsWhenRetentionDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ResultRetentionDays = 0
	var events []string
	mgr := &fakeManager{events: &events}
	d, _ := daemon.New(cfg, mgr, nil)

	d.Sweep(context.Background())
	if ages := mgr.cleanupAges(); len(ages) != 0 {
		t.Fatalf("cleanup should not run with retention disabled, got %v", ages)
	}
}
