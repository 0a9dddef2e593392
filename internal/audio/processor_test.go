package audio

import (
	"context"
	"errors"
	"strings"
	"testing"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/services"
)

type recordedCall struct {
	name string
	args []string
}

func recordingProcessor(t *testing.T, cfg config.Config, output []byte, err error) (*Processor, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCall{name: name, args: append([]string(nil), args...)})
		return output, err
	}
	return NewProcessor(&cfg, logging.NewNop(), WithRunner(run)), calls
}

func TestProbeParsesDurationAndStreams(t *testing.T) {
	payload := []byte(`{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3","sample_rate":"44100","channels":2}],"format":{"duration":"1834.25","format_name":"mp3"}}`)
	proc, calls := recordingProcessor(t, config.Default(), payload, nil)
	info, err := proc.Probe(context.Background(), "/meetings/weekly.mp3")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.DurationSeconds != 1834.25 || info.SampleRate != 44100 || info.AudioStreams != 1 || info.Format != "mp3" {
		t.Fatalf("unexpected info %+v", info)
	}
	if (*calls)[0].name != "ffprobe" || (*calls)[0].args[len((*calls)[0].args)-1] != "/meetings/weekly.mp3" {
		t.Fatalf("unexpected ffprobe call %+v", (*calls)[0])
	}
}

func TestProbeFallsBackToStreamDuration(t *testing.T) {
	payload := []byte(`{"streams":[{"codec_type":"audio","duration":"12.5"},{"codec_type":"audio","duration":"14.0"}],"format":{}}`)
	proc, _ := recordingProcessor(t, config.Default(), payload, nil)
	info, err := proc.Probe(context.Background(), "a.ogg")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.DurationSeconds != 14 {
		t.Fatalf("expected longest stream duration, got %v", info.DurationSeconds)
	}
}

func TestProbeFailureIsExternalToolError(t *testing.T) {
	proc, _ := recordingProcessor(t, config.Default(), []byte("Invalid data found"), errors.New("exit status 1"))
	_, err := proc.Probe(context.Background(), "broken.wav")
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected external tool error with output, got %v", err)
	}
}

func TestResampleArguments(t *testing.T) {
	proc, calls := recordingProcessor(t, config.Default(), nil, nil)
	if err := proc.Resample(context.Background(), "in.m4a", "out.wav"); err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	joined := strings.Join((*calls)[0].args, " ")
	for _, fragment := range []string{"-i in.m4a", "-ac 1", "-ar 16000", "-c:a pcm_s16le", "out.wav"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected %q in %q", fragment, joined)
		}
	}
}

func TestPreprocessFilterChain(t *testing.T) {
	cfg := config.Default()
	proc, calls := recordingProcessor(t, cfg, nil, nil)
	if err := proc.Preprocess(context.Background(), "in.wav", "out.wav"); err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	joined := strings.Join((*calls)[0].args, " ")
	if !strings.Contains(joined, "-af afftdn=nf=-25,loudnorm=") {
		t.Fatalf("expected denoise and loudnorm filters, got %q", joined)
	}
	if strings.Contains(joined, "silenceremove") || strings.Contains(joined, "atrim") {
		t.Fatalf("preprocess must not trim audio: %q", joined)
	}

	cfg.Audio.Denoise = false
	cfg.Audio.NormalizeLoudness = false
	proc, calls = recordingProcessor(t, cfg, nil, nil)
	if err := proc.Preprocess(context.Background(), "in.wav", "out.wav"); err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if strings.Contains(strings.Join((*calls)[0].args, " "), "-af") {
		t.Fatal("expected no filter chain when filters are disabled")
	}
}

func TestExtractRangeRejectsEmptyRange(t *testing.T) {
	proc, calls := recordingProcessor(t, config.Default(), nil, nil)
	if err := proc.ExtractRange(context.Background(), "in.wav", 3, 3, "clip.wav"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := proc.ExtractRange(context.Background(), "in.wav", 1.5, 4, "clip.wav"); err != nil {
		t.Fatalf("ExtractRange failed: %v", err)
	}
	joined := strings.Join((*calls)[0].args, " ")
	if !strings.Contains(joined, "-ss 1.500 -t 2.500") {
		t.Fatalf("unexpected range args %q", joined)
	}
}
