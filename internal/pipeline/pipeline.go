package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"minutes/internal/analysis"
	"minutes/internal/audio"
	"minutes/internal/config"
	"minutes/internal/fusion"
	"minutes/internal/logging"
)

// Stage names, in execution order.
const (
	StageValidate   = "validate"
	StageLoad       = "load"
	StagePreprocess = "preprocess"
	StageDiarize    = "diarize"
	StageTranscribe = "transcribe"
	StageFuse       = "fuse"
	StageEmotion    = "emotion"
	StageAnalyze    = "analyze"
	StageReport     = "report"
)

// Progress reported after each stage completes.
const (
	progressValidate   = 5
	progressLoad       = 10
	progressPreprocess = 20
	progressDiarize    = 35
	progressTranscribe = 50
	progressFuse       = 55
	progressEmotion    = 70
	progressAnalyze    = 90
	progressReport     = 100
)

// AudioProcessor decodes and conditions recordings.
type AudioProcessor interface {
	Probe(ctx context.Context, path string) (audio.Info, error)
	Resample(ctx context.Context, inPath, outPath string) error
	Preprocess(ctx context.Context, inPath, outPath string) error
}

// Transcriber produces timed text for a WAV file.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath, workDir, language string) (fusion.Transcript, error)
}

// Diarizer produces speaker turns for a WAV file.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath string, numSpeakers int) ([]fusion.Interval, error)
}

// Analyzer runs the LLM analysis phases over fused utterances.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*analysis.Results, error)
}

// Leaves bundles the collaborators a pipeline drives. Tagger may be nil,
// in which case emotion tagging is skipped even when requested.
type Leaves struct {
	Audio       AudioProcessor
	Transcriber Transcriber
	Diarizer    Diarizer
	Tagger      fusion.Tagger
	Analyzer    Analyzer
}

func (l Leaves) validate() error {
	var missing []string
	if l.Audio == nil {
		missing = append(missing, "audio processor")
	}
	if l.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if l.Diarizer == nil {
		missing = append(missing, "diarizer")
	}
	if l.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing leaves: %v", missing)
	}
	return nil
}

// Settings are the run limits taken from configuration.
type Settings struct {
	// MaxDuration rejects longer recordings. Zero disables the check.
	MaxDuration time.Duration
	// MinDuration rejects degenerate recordings shorter than this.
	MinDuration time.Duration
	// WorkDir is the parent of per-run scratch directories.
	WorkDir string
}

// SettingsFrom maps the audio limits and work directory from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		MaxDuration: cfg.MaxDuration(),
		MinDuration: cfg.MinDuration(),
		WorkDir:     cfg.WorkDir(),
	}
}

// Options are the per-run caller choices.
type Options struct {
	NumSpeakers   int    `json:"num_speakers,omitempty"`
	Language      string `json:"language,omitempty"`
	EnableEmotion bool   `json:"enable_emotion"`
	EnableContext bool   `json:"enable_context"`
}

// DefaultOptions enables every optional stage.
func DefaultOptions() Options {
	return Options{EnableEmotion: true, EnableContext: true}
}

// ProgressFunc receives progress percentages for one run.
type ProgressFunc func(progress int)

// StageObserver is told how long each stage took and whether it failed.
type StageObserver func(stage string, elapsed time.Duration, err error)

// Pipeline runs recordings through the stage sequence.
type Pipeline struct {
	settings Settings
	leaves   Leaves
	logger   *slog.Logger
	observer StageObserver
	now      func() time.Time

	releaseOnce sync.Once
	releaseErr  error
}

// Option customizes a pipeline.
type Option func(*Pipeline)

// WithStageObserver registers a stage timing hook.
func WithStageObserver(observer StageObserver) Option {
	return func(p *Pipeline) { p.observer = observer }
}

// WithClock overrides the time source used for processing time.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New validates the leaves and returns a pipeline.
func New(settings Settings, leaves Leaves, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if err := leaves.validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		settings: settings,
		leaves:   leaves,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Release closes every leaf that implements io.Closer. Only the first call
// does any work; later calls return the same result.
func (p *Pipeline) Release() error {
	p.releaseOnce.Do(func() {
		var errs []error
		for _, leaf := range []any{p.leaves.Audio, p.leaves.Transcriber, p.leaves.Diarizer, p.leaves.Tagger, p.leaves.Analyzer} {
			closer, ok := leaf.(io.Closer)
			if !ok || closer == nil {
				continue
			}
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.releaseErr = errors.Join(errs...)
	})
	return p.releaseErr
}
