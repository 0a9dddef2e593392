package tasks

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"minutes/internal/logging"
	"minutes/internal/report"
	"minutes/internal/services"
)

type memoryResults struct {
	mu       sync.Mutex
	reports  map[string]*report.MeetingReport
	saveErr  error
	pruned   time.Time
	pruneHit int
}

func newMemoryResults() *memoryResults {
	return &memoryResults{reports: map[string]*report.MeetingReport{}}
}

func (m *memoryResults) Save(_ context.Context, id string, rep *report.MeetingReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.reports[id] = rep
	return nil
}

func (m *memoryResults) Load(_ context.Context, id string) (*report.MeetingReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.reports[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "load", id, nil)
	}
	return rep, nil
}

func (m *memoryResults) PruneOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = cutoff
	return m.pruneHit, nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreateTaskIDFormat(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)}
	reg := NewRegistry(newMemoryResults(), logging.NewNop(), WithClock(clock.Now))
	id := reg.CreateTask("/inbox/standup.wav")
	if !regexp.MustCompile(`^task_20260506_070809_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("unexpected task id %q", id)
	}
	task, ok := reg.GetStatus(id)
	if !ok || task.Status != StatusPending || task.Progress != 0 || task.FileRef != "/inbox/standup.wav" {
		t.Fatalf("unexpected new task %+v", task)
	}
}

func TestCreateTaskRerollsCollisions(t *testing.T) {
	reg := NewRegistry(nil, logging.NewNop(), WithIDGenerator(func(time.Time) string { return "task_fixed" }))
	first := reg.CreateTask("a.wav")
	second := reg.CreateTask("b.wav")
	if first == second {
		t.Fatalf("expected unique ids, both were %q", first)
	}
}

func TestUpdateStatusUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry(nil, logging.NewNop())
	reg.UpdateStatus("task_missing", StatusProcessing, WithProgress(50))
	if _, ok := reg.GetStatus("task_missing"); ok {
		t.Fatal("update must not create tasks")
	}
}

func TestUpdateStatusNeverDowngradesTerminal(t *testing.T) {
	reg := NewRegistry(nil, logging.NewNop())
	id := reg.CreateTask("a.wav")
	reg.UpdateStatus(id, StatusProcessing, WithProgress(35))
	reg.UpdateStatus(id, StatusFailed, WithError("diarize: service unavailable"))
	reg.UpdateStatus(id, StatusProcessing, WithProgress(50))

	task, _ := reg.GetStatus(id)
	if task.Status != StatusFailed || task.Progress != 35 || task.Error != "diarize: service unavailable" {
		t.Fatalf("terminal task was modified: %+v", task)
	}
}

func TestSaveResultSwallowsErrorsAndGetResultReportsMiss(t *testing.T) {
	results := newMemoryResults()
	results.saveErr = errors.New("disk full")
	reg := NewRegistry(results, logging.NewNop())
	id := reg.CreateTask("a.wav")

	reg.SaveResult(context.Background(), id, &report.MeetingReport{MeetingID: id})
	if _, err := reg.GetResult(context.Background(), id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after failed save, got %v", err)
	}

	results.saveErr = nil
	reg.SaveResult(context.Background(), id, &report.MeetingReport{MeetingID: id})
	rep, err := reg.GetResult(context.Background(), id)
	if err != nil || rep.MeetingID != id {
		t.Fatalf("expected stored result, got %+v err=%v", rep, err)
	}
}

func TestCleanupOlderThanKeepsActiveTasks(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	results := newMemoryResults()
	results.pruneHit = 3
	reg := NewRegistry(results, logging.NewNop(), WithClock(clock.Now))

	done := reg.CreateTask("done.wav")
	reg.UpdateStatus(done, StatusCompleted, WithProgress(100))
	running := reg.CreateTask("running.wav")
	reg.UpdateStatus(running, StatusProcessing, WithProgress(20))

	clock.Advance(48 * time.Hour)
	fresh := reg.CreateTask("fresh.wav")
	reg.UpdateStatus(fresh, StatusFailed, WithError("boom"))

	result := reg.CleanupOlderThan(context.Background(), 24*time.Hour)
	if result.TasksRemoved != 1 || result.ResultsRemoved != 3 {
		t.Fatalf("unexpected cleanup result %+v", result)
	}
	if _, ok := reg.GetStatus(done); ok {
		t.Fatal("expected old finished task removed")
	}
	if _, ok := reg.GetStatus(running); !ok {
		t.Fatal("active task must survive cleanup")
	}
	if _, ok := reg.GetStatus(fresh); !ok {
		t.Fatal("recent task must survive cleanup")
	}
	if want := clock.Now().Add(-24 * time.Hour); !results.pruned.Equal(want) {
		t.Fatalf("expected prune cutoff %s, got %s", want, results.pruned)
	}
}

func TestListNewestFirst(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := NewRegistry(nil, logging.NewNop(), WithClock(clock.Now))
	first := reg.CreateTask("1.wav")
	clock.Advance(time.Minute)
	second := reg.CreateTask("2.wav")
	list := reg.List()
	if len(list) != 2 || list[0].ID != second || list[1].ID != first {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	reg := NewRegistry(nil, logging.NewNop())
	id := reg.CreateTask("a.wav")
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			reg.UpdateStatus(id, StatusProcessing, WithProgress(p))
			_, _ = reg.GetStatus(id)
		}(i)
	}
	wg.Wait()
	task, _ := reg.GetStatus(id)
	if task.Status != StatusProcessing || task.Progress < 1 || task.Progress > 50 {
		t.Fatalf("unexpected task after concurrent updates %+v", task)
	}
}

func TestParseStatus(t *testing.T) {
	if got, err := ParseStatus(" Completed "); err != nil || got != StatusCompleted {
		t.Fatalf("ParseStatus = %q, %v", got, err)
	}
	if _, err := ParseStatus("ripping"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
