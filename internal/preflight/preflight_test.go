package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"minutes/internal/config"
	"minutes/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass with no minimum, got %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, ^uint64(0)); result.Passed || !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected failure with impossible minimum, got %+v", result)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected statfs failure for missing path")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		2 << 30: "2.0 GiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func healthServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckDiarization(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Diarization.URL = healthServer(t, http.StatusOK).URL
	if result := CheckDiarization(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	cfg.Diarization.URL = healthServer(t, http.StatusServiceUnavailable).URL
	if result := CheckDiarization(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for 503")
	}

	cfg.Diarization.URL = ""
	if result := CheckDiarization(context.Background(), cfg); result.Passed || result.Detail != "missing url" {
		t.Fatalf("expected missing url failure, got %+v", result)
	}
}

func TestCheckEmotionLeavesNoScratchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Emotion.URL = healthServer(t, http.StatusOK).URL
	if result := CheckEmotion(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	entries, _ := os.ReadDir(cfg.WorkDir())
	if len(entries) != 0 {
		t.Fatalf("health check should not create scratch dirs, found %d", len(entries))
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}

func TestRunAllSkipsDisabledEmotion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	cfg.LLM.APIKey = ""
	cfg.Diarization.URL = healthServer(t, http.StatusOK).URL
	cfg.Emotion.Enabled = false

	results := RunAll(context.Background(), cfg)
	for _, result := range results {
		if result.Name == "Emotion service" {
			t.Fatal("emotion check should be skipped when disabled")
		}
	}
	sawLLM := false
	for _, result := range Failed(results) {
		switch result.Name {
		case "Analysis LLM":
			sawLLM = true
		case "Work space":
			// Depends on the host filesystem.
		default:
			t.Fatalf("unexpected failed check %+v", result)
		}
	}
	if !sawLLM {
		t.Fatal("expected the LLM check to fail without an API key")
	}
}
