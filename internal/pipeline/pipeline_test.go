package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"minutes/internal/fusion"
	"minutes/internal/logging"
	"minutes/internal/pipeline"
	"minutes/internal/services"
	"minutes/internal/testsupport"
)

type fixture struct {
	audio       *testsupport.FakeAudio
	transcriber *testsupport.FakeTranscriber
	diarizer    *testsupport.FakeDiarizer
	tagger      *testsupport.FakeTagger
	analyzer    *testsupport.FakeAnalyzer
	workDir     string
	input       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	input := filepath.Join(base, "standup.wav")
	testsupport.WriteRecording(t, input, 0.1)
	return &fixture{
		audio: &testsupport.FakeAudio{Duration: 60},
		transcriber: &testsupport.FakeTranscriber{Transcript: fusion.Transcript{
			Text:     "hello there. ship it.",
			Language: "en",
			Spans: []fusion.Span{
				{Start: 0, End: 2, Text: "hello there."},
				{Start: 5, End: 6, Text: "ship it."},
			},
		}},
		diarizer: &testsupport.FakeDiarizer{Intervals: []fusion.Interval{
			{Start: 0, End: 1, Speaker: "A"},
			{Start: 1, End: 2, Speaker: "B"},
		}},
		tagger:   &testsupport.FakeTagger{Emotion: fusion.Emotion{Label: "neutral", Confidence: 0.9}},
		analyzer: &testsupport.FakeAnalyzer{},
		workDir:  filepath.Join(base, "work"),
		input:    input,
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Settings{
		MaxDuration: 120 * time.Minute,
		MinDuration: time.Second,
		WorkDir:     f.workDir,
	}, pipeline.Leaves{
		Audio:       f.audio,
		Transcriber: f.transcriber,
		Diarizer:    f.diarizer,
		Tagger:      f.tagger,
		Analyzer:    f.analyzer,
	}, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func TestRunProducesReportAndProgress(t *testing.T) {
	f := newFixture(t)
	var progress []int
	opts := pipeline.DefaultOptions()
	opts.NumSpeakers = 2
	opts.Language = "english"

	rep, err := f.pipeline(t).Run(context.Background(), "task_1", f.input, opts, func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []int{5, 10, 20, 35, 50, 55, 70, 90, 100}
	if !slices.Equal(progress, want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	if rep.MeetingID != "task_1" || rep.Duration != 60 {
		t.Fatalf("unexpected report header: %+v", rep)
	}
	if rep.Language != "en" || rep.LanguageName != "English" {
		t.Fatalf("unexpected language %q/%q", rep.Language, rep.LanguageName)
	}
	if len(rep.Segments) != 2 || rep.Segments[0].Speaker != "A" || rep.Segments[1].Speaker != fusion.UnknownSpeaker {
		t.Fatalf("unexpected fused segments: %+v", rep.Segments)
	}
	if rep.Segments[0].Emotion != "neutral" {
		t.Fatalf("expected emotion tags, got %+v", rep.Segments[0])
	}
	for _, path := range f.tagger.Paths() {
		if filepath.Base(path) != "resampled.wav" {
			t.Fatalf("emotion should classify the resampled audio, got %s", path)
		}
	}
	if len(f.tagger.Paths()) != 2 {
		t.Fatalf("expected one classification per utterance, got %v", f.tagger.Paths())
	}
	if rep.DiarizationStats.NumSegments != 2 {
		t.Fatalf("unexpected diarization stats %+v", rep.DiarizationStats)
	}
	if rep.ProcessingTimeSeconds < 0 || rep.RealtimeFactor != rep.ProcessingTimeSeconds/60 {
		t.Fatalf("unexpected timing %v %v", rep.ProcessingTimeSeconds, rep.RealtimeFactor)
	}
	if f.diarizer.SpeakerHint[0] != 2 || f.transcriber.Languages[0] != "english" {
		t.Fatalf("options not forwarded: %v %v", f.diarizer.SpeakerHint, f.transcriber.Languages)
	}
	if !f.analyzer.Inputs[0].EnableContext {
		t.Fatal("expected context flag forwarded to analyzer")
	}
}

func TestRunRemovesRunDirectory(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipeline(t).Run(context.Background(), "task_1", f.input, pipeline.DefaultOptions(), nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	entries, err := os.ReadDir(f.workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected run directory to be removed, found %d entries", len(entries))
	}

	f.diarizer.Err = errors.New("boom")
	if _, err := f.pipeline(t).Run(context.Background(), "task_2", f.input, pipeline.DefaultOptions(), nil); err == nil {
		t.Fatal("expected failure")
	}
	if entries, _ := os.ReadDir(f.workDir); len(entries) != 0 {
		t.Fatalf("expected run directory to be removed after failure, found %d entries", len(entries))
	}
}

func TestRunEmotionDisabledStillReportsProgress(t *testing.T) {
	f := newFixture(t)
	var progress []int
	opts := pipeline.Options{EnableEmotion: false}
	rep, err := f.pipeline(t).Run(context.Background(), "task_1", f.input, opts, func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !slices.Contains(progress, 70) {
		t.Fatalf("expected 70 even with emotion disabled, got %v", progress)
	}
	if rep.Segments[0].Emotion != "" {
		t.Fatalf("expected no emotion tags, got %+v", rep.Segments[0])
	}
}

func TestRunValidationFailures(t *testing.T) {
	cases := map[string]func(f *fixture){
		"missing file": func(f *fixture) { f.input = filepath.Join(filepath.Dir(f.input), "missing.wav") },
		"too long":     func(f *fixture) { f.audio.Duration = 121 * 60 },
		"too short":    func(f *fixture) { f.audio.Duration = 0.5 },
		"unreadable":   func(f *fixture) { f.audio.ProbeErr = errors.New("invalid data") },
		"directory":    func(f *fixture) { f.input = filepath.Dir(f.input) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			mutate(f)
			var progress []int
			_, err := f.pipeline(t).Run(context.Background(), "task_1", f.input, pipeline.DefaultOptions(), func(p int) {
				progress = append(progress, p)
			})
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if errors.Is(err, services.ErrStageFailure) {
				t.Fatalf("validation error must not be a stage failure: %v", err)
			}
			if !slices.Equal(progress, []int{5}) {
				t.Fatalf("expected only 5%% progress, got %v", progress)
			}
			if slices.Contains(f.audio.Calls(), "resample") {
				t.Fatal("no model work should start after validation fails")
			}
		})
	}
}

func TestRunStageFailureNamesStage(t *testing.T) {
	f := newFixture(t)
	f.transcriber.Err = errors.New("cuda out of memory")
	var progress []int
	_, err := f.pipeline(t).Run(context.Background(), "task_1", f.input, pipeline.DefaultOptions(), func(p int) {
		progress = append(progress, p)
	})

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != pipeline.StageTranscribe {
		t.Fatalf("expected transcribe stage error, got %v", err)
	}
	if !errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("expected stage failure marker, got %v", err)
	}
	if progress[len(progress)-1] != 35 {
		t.Fatalf("expected progress to stop at 35, got %v", progress)
	}
	if len(f.analyzer.Inputs) != 0 {
		t.Fatal("analysis must not run after a fatal stage")
	}
}

func TestRunObserverSeesEveryStage(t *testing.T) {
	f := newFixture(t)
	var stages []string
	observer := func(stage string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected error for %s: %v", stage, err)
		}
		stages = append(stages, stage)
	}
	if _, err := f.pipeline(t, pipeline.WithStageObserver(observer)).Run(context.Background(), "t", f.input, pipeline.DefaultOptions(), nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{
		pipeline.StageValidate, pipeline.StageLoad, pipeline.StagePreprocess, pipeline.StageDiarize,
		pipeline.StageTranscribe, pipeline.StageFuse, pipeline.StageEmotion, pipeline.StageAnalyze, pipeline.StageReport,
	}
	if !slices.Equal(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	f.diarizer.Block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline(t).Run(ctx, "t", f.input, pipeline.DefaultOptions(), nil)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestReleaseClosesLeavesOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	if err := p.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("second Release returned error: %v", err)
	}
	if f.tagger.Closed() != 1 {
		t.Fatalf("expected tagger closed once, got %d", f.tagger.Closed())
	}
}

func TestNewRequiresLeaves(t *testing.T) {
	if _, err := pipeline.New(pipeline.Settings{}, pipeline.Leaves{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing leaves")
	}
}

func TestStageAt(t *testing.T) {
	cases := map[int]string{
		0:   pipeline.StageValidate,
		5:   pipeline.StageLoad,
		34:  pipeline.StageDiarize,
		35:  pipeline.StageTranscribe,
		70:  pipeline.StageAnalyze,
		90:  pipeline.StageReport,
		100: "",
	}
	for progress, want := range cases {
		if got := pipeline.StageAt(progress); got != want {
			t.Fatalf("StageAt(%d) = %q, want %q", progress, got, want)
		}
	}
}
