package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minutes/internal/api"
	"minutes/internal/config"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/tasks"
	"minutes/internal/testsupport"
)

type fakeService struct {
	mu        sync.Mutex
	submitted []submission
	submitErr error
	tasks     map[string]tasks.Task
	results   map[string]*report.MeetingReport
	cleanups  []time.Duration
}

type submission struct {
	path string
	opts pipeline.Options
}

func newFakeService() *fakeService {
	return &fakeService{
		tasks:   make(map[string]tasks.Task),
		results: make(map[string]*report.MeetingReport),
	}
}

func (f *fakeService) Submit(_ context.Context, path string, opts pipeline.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, submission{path: path, opts: opts})
	id := "task_1"
	f.tasks[id] = tasks.Task{ID: id, FileRef: path, Status: tasks.StatusPending}
	return id, nil
}

func (f *fakeService) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submitted...)
}

func (f *fakeService) cleanupAges() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.cleanups...)
}

func (f *fakeService) Status(id string) (tasks.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	return task, ok
}

func (f *fakeService) Result(_ context.Context, id string) (*report.MeetingReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rep, ok := f.results[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "load result", id, nil)
	}
	return rep, nil
}

func (f *fakeService) List() []tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tasks.Task, 0, len(f.tasks))
	for _, task := range f.tasks {
		out = append(out, task)
	}
	return out
}

func (f *fakeService) Cleanup(_ context.Context, maxAge time.Duration) tasks.CleanupResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, maxAge)
	return tasks.CleanupResult{TasksRemoved: 2, ResultsRemoved: 1}
}

func startServer(t *testing.T, cfg *config.Config, svc api.TaskService, opts ...api.ServerOption) *api.Client {
	t.Helper()
	srv := api.NewServer(cfg, svc, nil, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return api.NewClient(ts.URL, api.WithToken(cfg.Paths.APIToken))
}

func TestHealthReportsVersionAndActiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := newFakeService()
	svc.tasks["a"] = tasks.Task{ID: "a", Status: tasks.StatusProcessing}
	svc.tasks["b"] = tasks.Task{ID: "b", Status: tasks.StatusCompleted}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client := startServer(t, cfg, svc, api.WithVersion("1.2.3"), api.WithClock(func() time.Time { return fixed }))

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "healthy" || health.Version != "1.2.3" || health.ActiveRuns != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if !health.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected timestamp %s", health.Timestamp)
	}
}

func TestSubmitKeepsDefaultOptionsForOmittedFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := newFakeService()
	srv := api.NewServer(cfg, svc, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/tasks", "application/json", strings.NewReader(`{"path":" /rec/standup.wav ","num_speakers":3}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	subs := svc.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	got := subs[0]
	if got.path != "/rec/standup.wav" || got.opts.NumSpeakers != 3 {
		t.Fatalf("unexpected submission %+v", got)
	}
	if !got.opts.EnableEmotion || !got.opts.EnableContext {
		t.Fatalf("omitted flags should default to enabled, got %+v", got.opts)
	}
}

func TestSubmitValidationErrorIsBadRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := newFakeService()
	svc.submitErr = services.Wrap(services.ErrValidation, "", "submit", "unsupported file type", nil)
	client := startServer(t, cfg, svc)

	_, err := client.Submit(context.Background(), "/rec/notes.txt", pipeline.DefaultOptions())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Kind != "validation" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	client := startServer(t, testsupport.NewConfig(t), newFakeService())

	if _, err := client.Task(context.Background(), "task_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for task, got %v", err)
	}
	if _, err := client.Result(context.Background(), "task_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for result, got %v", err)
	}
}

func TestResultStates(t *testing.T) {
	svc := newFakeService()
	svc.tasks["pending"] = tasks.Task{ID: "pending", Status: tasks.StatusProcessing, Progress: 35}
	svc.tasks["failed"] = tasks.Task{ID: "failed", Status: tasks.StatusFailed, Error: "diarize: service down"}
	svc.tasks["done"] = tasks.Task{ID: "done", Status: tasks.StatusCompleted, Progress: 100}
	svc.results["done"] = &report.MeetingReport{MeetingID: "meeting_done", Language: "en"}
	svc.results["old"] = &report.MeetingReport{MeetingID: "meeting_old"}
	client := startServer(t, testsupport.NewConfig(t), svc)
	ctx := context.Background()

	if _, err := client.Result(ctx, "pending"); !api.IsNotReady(err) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
	_, err := client.Result(ctx, "failed")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Message != "diarize: service down" {
		t.Fatalf("expected failed task conflict, got %v", err)
	}

	rep, err := client.Result(ctx, "done")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if rep.MeetingID != "meeting_done" || rep.Language != "en" {
		t.Fatalf("unexpected report %+v", rep)
	}

	// Reports stored before a restart outlive the in-memory task table.
	rep, err = client.Result(ctx, "old")
	if err != nil || rep.MeetingID != "meeting_old" {
		t.Fatalf("expected stored report, got %+v (%v)", rep, err)
	}
}

func TestTokenRequiredExceptHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "s3cret"
	srv := api.NewServer(cfg, newFakeService(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	anonymous := api.NewClient(ts.URL)
	if _, err := anonymous.Health(context.Background()); err != nil {
		t.Fatalf("health should not need a token: %v", err)
	}
	_, err := anonymous.Tasks(context.Background())
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	wrong := api.NewClient(ts.URL, api.WithToken("nope"))
	if _, err := wrong.Tasks(context.Background()); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %v", err)
	}

	authed := api.NewClient(ts.URL, api.WithToken("s3cret"))
	if _, err := authed.Tasks(context.Background()); err != nil {
		t.Fatalf("Tasks with token: %v", err)
	}
}

func TestUploadStoresRecordingAndSubmitsIt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := newFakeService()
	client := startServer(t, cfg, svc)

	src := filepath.Join(t.TempDir(), "Weekly Sync.M4A")
	size := testsupport.WriteRecording(t, src, 0.25)

	opts := pipeline.Options{Language: "de", NumSpeakers: 4, EnableEmotion: false, EnableContext: true}
	resp, err := client.Upload(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.TaskID != "task_1" || resp.FileID == "" || resp.Status != tasks.StatusPending {
		t.Fatalf("unexpected response %+v", resp)
	}
	subs := svc.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	got := subs[0]
	want := filepath.Join(cfg.UploadsDir(), resp.FileID+".m4a")
	if got.path != want {
		t.Fatalf("stored at %q, want %q", got.path, want)
	}
	if got.opts != opts {
		t.Fatalf("options not forwarded: got %+v want %+v", got.opts, opts)
	}
	info, err := os.Stat(got.path)
	if err != nil || info.Size() != size {
		t.Fatalf("stored upload mismatch: %v %v", info, err)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := newFakeService()
	client := startServer(t, cfg, svc)

	src := filepath.Join(t.TempDir(), "notes.txt")
	testsupport.WriteFile(t, src, 10)
	if _, err := client.Upload(context.Background(), src, pipeline.DefaultOptions()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if subs := svc.submissions(); len(subs) != 0 {
		t.Fatalf("nothing should be submitted, got %+v", subs)
	}
	entries, _ := os.ReadDir(cfg.UploadsDir())
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d files behind", len(entries))
	}
}

func TestCleanupUsesRetentionByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ResultRetentionDays = 3
	svc := newFakeService()
	client := startServer(t, cfg, svc)

	result, err := client.Cleanup(context.Background(), 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.TasksRemoved != 2 || result.ResultsRemoved != 1 {
		t.Fatalf("unexpected cleanup result %+v", result)
	}
	if _, err := client.Cleanup(context.Background(), 90*time.Minute); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	want := []time.Duration{72 * time.Hour, 90 * time.Minute}
	ages := svc.cleanupAges()
	if len(ages) != 2 || ages[0] != want[0] || ages[1] != want[1] {
		t.Fatalf("unexpected cleanup ages %v", ages)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.TasksSubmitted.Inc()
	srv := api.NewServer(testsupport.NewConfig(t), newFakeService(), nil, api.WithMetrics(m))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "minutes_tasks_submitted_total 1") {
		t.Fatalf("unexpected metrics response %d:\n%s", resp.StatusCode, body)
	}
}

func TestStartListensOnConfiguredBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := api.NewServer(cfg, newFakeService(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	client := api.NewClient(srv.Addr())
	if _, err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health over listener: %v", err)
	}
}
