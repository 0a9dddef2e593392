package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"minutes/internal/analysis"
	"minutes/internal/api"
	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/tasks"
	"minutes/internal/testsupport"
	"minutes/internal/workflow"
)

// cannedRunner returns a fixed report, or fails for recordings named fail.*.
type cannedRunner struct{}

func (cannedRunner) Run(_ context.Context, meetingID, audioPath string, _ pipeline.Options, progress pipeline.ProgressFunc) (*report.MeetingReport, error) {
	progress(35)
	if strings.HasPrefix(filepath.Base(audioPath), "fail") {
		return nil, errors.New("diarize: service unavailable")
	}
	return sampleReport(meetingID), nil
}

func (cannedRunner) Release() error { return nil }

func cannedFactory(context.Context, *slog.Logger) (workflow.Runner, error) {
	return cannedRunner{}, nil
}

func sampleReport(id string) *report.MeetingReport {
	return &report.MeetingReport{
		MeetingID:    id,
		Timestamp:    "2026-03-02T10:00:00Z",
		Duration:     754,
		Language:     "en",
		LanguageName: "English",
		Speakers:     []string{"SPEAKER_00", "SPEAKER_01"},
		DiarizationStats: report.DiarizationStats{
			NumSegments:  4,
			NumSpeakers:  2,
			SpeakerTimes: map[string]float64{"SPEAKER_00": 300, "SPEAKER_01": 100},
		},
		Actions: &analysis.Outcome[analysis.Actions]{Value: &analysis.Actions{
			ActionItems: []analysis.ActionItem{{Assignee: "SPEAKER_00", Task: "Send the budget draft", Priority: "high"}},
			Decisions:   []analysis.Decision{{Decision: "Ship on Friday"}},
		}},
		Sentiment: &analysis.Outcome[analysis.Sentiment]{Error: "phase failure: sentiment: invalid json"},
		ExecutiveSummary: analysis.ExecutiveSummary{
			KeyHighlights: []string{"Release moves to Friday"},
			OverallMood:   "positive",
		},
		ProcessingTimeSeconds: 42,
		RealtimeFactor:        0.06,
	}
}

type cliTestEnv struct {
	cfg        *config.Config
	manager    *workflow.Manager
	apiAddr    string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("MINUTES_API_TOKEN", "")

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	registry := tasks.NewRegistry(testsupport.MustOpenResults(t, cfg), logger)
	mgr := workflow.NewManager(cfg, registry, cannedFactory, logger)
	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		cancel()
		t.Fatalf("manager start: %v", err)
	}

	srv := api.NewServer(cfg, mgr, logger, api.WithVersion("test"))
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		mgr.Stop()
		cancel()
	})

	return &cliTestEnv{
		cfg:        cfg,
		manager:    mgr,
		apiAddr:    ts.URL,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[llm]\napi_key = %q\n\n[analysis]\nhistory_path = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.LLM.APIKey,
		cfg.Analysis.HistoryPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
