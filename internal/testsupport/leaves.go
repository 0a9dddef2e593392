package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"minutes/internal/analysis"
	"minutes/internal/audio"
	"minutes/internal/fusion"
)

// FakeAudio stands in for the ffmpeg processor. Resample and Preprocess
// write a small placeholder file so later stages find their input.
type FakeAudio struct {
	Duration      float64
	ProbeErr      error
	ResampleErr   error
	PreprocessErr error

	mu    sync.Mutex
	calls []string
}

func (f *FakeAudio) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns the operations invoked so far.
func (f *FakeAudio) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeAudio) Probe(_ context.Context, _ string) (audio.Info, error) {
	f.record("probe")
	if f.ProbeErr != nil {
		return audio.Info{}, f.ProbeErr
	}
	return audio.Info{DurationSeconds: f.Duration, SampleRate: 16000, AudioStreams: 1, Format: "wav"}, nil
}

func (f *FakeAudio) Resample(_ context.Context, _, outPath string) error {
	f.record("resample")
	if f.ResampleErr != nil {
		return f.ResampleErr
	}
	return writePlaceholder(outPath)
}

func (f *FakeAudio) Preprocess(_ context.Context, _, outPath string) error {
	f.record("preprocess")
	if f.PreprocessErr != nil {
		return f.PreprocessErr
	}
	return writePlaceholder(outPath)
}

func (f *FakeAudio) ExtractRange(_ context.Context, _ string, _, _ float64, outPath string) error {
	f.record("extract")
	return writePlaceholder(outPath)
}

func writePlaceholder(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("RIFF"), 0o644)
}

// FakeTranscriber returns a fixed transcript.
type FakeTranscriber struct {
	Transcript fusion.Transcript
	Err        error

	mu        sync.Mutex
	Languages []string
}

func (f *FakeTranscriber) Transcribe(_ context.Context, _, _, language string) (fusion.Transcript, error) {
	f.mu.Lock()
	f.Languages = append(f.Languages, language)
	f.mu.Unlock()
	if f.Err != nil {
		return fusion.Transcript{}, f.Err
	}
	return f.Transcript, nil
}

// FakeDiarizer returns fixed intervals.
type FakeDiarizer struct {
	Intervals []fusion.Interval
	Err       error
	// Block, when set, makes Diarize wait for it to close or ctx to end.
	Block chan struct{}

	mu          sync.Mutex
	SpeakerHint []int
}

func (f *FakeDiarizer) Diarize(ctx context.Context, _ string, numSpeakers int) ([]fusion.Interval, error) {
	f.mu.Lock()
	f.SpeakerHint = append(f.SpeakerHint, numSpeakers)
	f.mu.Unlock()
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Intervals, nil
}

// FakeTagger labels every utterance with Emotion, remembers the audio it was
// asked about and counts Close calls.
type FakeTagger struct {
	Emotion fusion.Emotion
	Err     error

	mu     sync.Mutex
	closed int
	paths  []string
}

func (f *FakeTagger) Classify(_ context.Context, audioPath string, _, _ float64) (fusion.Emotion, error) {
	f.mu.Lock()
	f.paths = append(f.paths, audioPath)
	f.mu.Unlock()
	if f.Err != nil {
		return fusion.Emotion{}, f.Err
	}
	return f.Emotion, nil
}

func (f *FakeTagger) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

// Paths returns the audio paths passed to Classify, in call order.
func (f *FakeTagger) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// Closed reports how many times Close ran.
func (f *FakeTagger) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeAnalyzer returns one action item per call and records its inputs.
type FakeAnalyzer struct {
	Err error

	mu     sync.Mutex
	Inputs []analysis.Input
}

func (f *FakeAnalyzer) Analyze(ctx context.Context, in analysis.Input) (*analysis.Results, error) {
	f.mu.Lock()
	f.Inputs = append(f.Inputs, in)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meetingID := in.MeetingID
	if meetingID == "" {
		meetingID = "20250101_120000"
	}
	res := &analysis.Results{
		MeetingID: meetingID,
		Timestamp: "2025-01-01T12:00:00Z",
		Speakers:  fusion.Speakers(in.Utterances),
		Actions: &analysis.Outcome[analysis.Actions]{Value: &analysis.Actions{
			ActionItems: []analysis.ActionItem{{Assignee: "A", Task: "send notes"}},
			Decisions:   []analysis.Decision{},
			FollowUps:   []analysis.FollowUp{},
			Commitments: []analysis.Commitment{},
		}},
		Sentiment: &analysis.Outcome[analysis.Sentiment]{Error: "phase failure: sentiment: model unavailable"},
	}
	res.Summary = analysis.Summarize(res)
	return res, nil
}
