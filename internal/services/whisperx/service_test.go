package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"minutes/internal/logging"
	"minutes/internal/services"
)

func fakeWhisperX(t *testing.T, payload string, calls *[]string) CommandRunner {
	t.Helper()
	return func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, name)
		*calls = append(*calls, args...)
		dir := args[slices.Index(args, "--output_dir")+1]
		source := args[slices.Index(args, "whisperx")+1]
		base := filepath.Base(source)
		base = base[:len(base)-len(filepath.Ext(base))]
		return os.WriteFile(filepath.Join(dir, base+".json"), []byte(payload), 0o644)
	}
}

func TestTranscribeReadsSegmentsAndLanguage(t *testing.T) {
	var calls []string
	payload := `{"language":"en","segments":[{"start":0,"end":1.5,"text":" Hello team "},{"start":1.5,"end":2,"text":"  "},{"start":2,"end":4,"text":"Ship it."}]}`
	svc := NewService(Config{Model: "small"}, logging.NewNop(), WithCommandRunner(fakeWhisperX(t, payload, &calls)))

	work := t.TempDir()
	result, err := svc.Transcribe(context.Background(), filepath.Join(work, "meeting.wav"), work, "")
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if result.Language != "en" {
		t.Fatalf("expected language en, got %q", result.Language)
	}
	if len(result.Spans) != 2 || result.Spans[0].Text != "Hello team" || result.Spans[1].Start != 2 {
		t.Fatalf("unexpected spans: %+v", result.Spans)
	}
	if result.Text != "Hello team Ship it." {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if calls[0] != UVXCommand || !slices.Contains(calls, "small") {
		t.Fatalf("unexpected command: %v", calls)
	}
	if slices.Contains(calls, "--language") {
		t.Fatalf("language flag should be omitted when no hint is given: %v", calls)
	}
}

func TestBuildArgsNormalizesLanguageAndDevice(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true, VADMethod: VADMethodPyannote, HFToken: "hf"}, logging.NewNop())
	args := svc.buildArgs("/tmp/a.wav", "/tmp/out", "en-US")

	idx := slices.Index(args, "--language")
	if idx < 0 || args[idx+1] != "en" {
		t.Fatalf("expected normalized language, got %v", args)
	}
	if !slices.Contains(args, CUDADevice) || !slices.Contains(args, CUDAIndexURL) {
		t.Fatalf("expected cuda arguments, got %v", args)
	}
	if !slices.Contains(args, "--hf_token") {
		t.Fatalf("expected hf token for pyannote vad, got %v", args)
	}
}

func TestTranscribeWrapsRunnerFailure(t *testing.T) {
	runner := func(context.Context, string, ...string) error { return errors.New("exit status 1") }
	svc := NewService(Config{}, logging.NewNop(), WithCommandRunner(runner))
	work := t.TempDir()
	_, err := svc.Transcribe(context.Background(), filepath.Join(work, "a.wav"), work, "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	runner := func(context.Context, string, ...string) error { return nil }
	svc := NewService(Config{}, logging.NewNop(), WithCommandRunner(runner))
	work := t.TempDir()
	if _, err := svc.Transcribe(context.Background(), filepath.Join(work, "a.wav"), work, ""); err == nil {
		t.Fatal("expected error when whisperx produced no json")
	}
}
