package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/analysis"
	"minutes/internal/audio"
	"minutes/internal/fusion"
	"minutes/internal/language"
	"minutes/internal/logging"
	"minutes/internal/report"
	"minutes/internal/services"
)

// Run processes audioPath into a report. meetingID is usually the task id;
// an empty id lets the analyzer pick a timestamp-based one.
func (p *Pipeline) Run(ctx context.Context, meetingID, audioPath string, opts Options, progress ProgressFunc) (*report.MeetingReport, error) {
	started := p.now()
	guard := newProgressGuard(progress)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("meeting run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("audio_path", audioPath),
		logging.Int("num_speakers", opts.NumSpeakers),
		logging.String("language", opts.Language),
		logging.Bool("emotion", opts.EnableEmotion),
		logging.Bool("context", opts.EnableContext),
	)

	guard.report(progressValidate)
	validateStart := p.now()
	info, err := p.validate(services.WithStage(ctx, StageValidate), audioPath)
	p.observe(StageValidate, p.now().Sub(validateStart), err)
	if err != nil {
		logging.WarnWithContext(logger, "recording rejected", "validation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the file path and recording length"),
			logging.String(logging.FieldImpact, "no analysis was produced"),
		)
		return nil, err
	}

	runDir, err := p.createRunDir()
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			logger.Warn("failed to remove run directory", logging.String("path", runDir), logging.Error(err))
		}
	}()

	resampled := filepath.Join(runDir, "resampled.wav")
	if err := p.stage(ctx, StageLoad, func(ctx context.Context) error {
		return p.leaves.Audio.Resample(ctx, audioPath, resampled)
	}); err != nil {
		return nil, err
	}
	guard.report(progressLoad)

	prepared := filepath.Join(runDir, "prepared.wav")
	if err := p.stage(ctx, StagePreprocess, func(ctx context.Context) error {
		return p.leaves.Audio.Preprocess(ctx, resampled, prepared)
	}); err != nil {
		return nil, err
	}
	guard.report(progressPreprocess)

	var intervals []fusion.Interval
	if err := p.stage(ctx, StageDiarize, func(ctx context.Context) error {
		var err error
		intervals, err = p.leaves.Diarizer.Diarize(ctx, prepared, opts.NumSpeakers)
		return err
	}); err != nil {
		return nil, err
	}
	guard.report(progressDiarize)

	var transcript fusion.Transcript
	if err := p.stage(ctx, StageTranscribe, func(ctx context.Context) error {
		var err error
		transcript, err = p.leaves.Transcriber.Transcribe(ctx, prepared, filepath.Join(runDir, "transcript"), opts.Language)
		return err
	}); err != nil {
		return nil, err
	}
	guard.report(progressTranscribe)

	var utterances []fusion.Utterance
	if err := p.stage(ctx, StageFuse, func(context.Context) error {
		utterances = fusion.Fuse(transcript.Spans, intervals)
		return nil
	}); err != nil {
		return nil, err
	}
	guard.report(progressFuse)

	// Emotion classifies the resampled audio, before denoise and loudnorm.
	if opts.EnableEmotion && p.leaves.Tagger != nil {
		if err := p.stage(ctx, StageEmotion, func(ctx context.Context) error {
			tagged, err := fusion.AnnotateEmotion(ctx, resampled, utterances, p.leaves.Tagger, logging.WithContext(ctx, p.logger))
			if err != nil {
				return err
			}
			utterances = tagged
			return nil
		}); err != nil {
			return nil, err
		}
	} else if opts.EnableEmotion {
		logger.Debug("emotion tagging requested but no tagger configured")
	}
	guard.report(progressEmotion)

	var results *analysis.Results
	if err := p.stage(ctx, StageAnalyze, func(ctx context.Context) error {
		var err error
		results, err = p.leaves.Analyzer.Analyze(ctx, analysis.Input{
			MeetingID:     meetingID,
			Utterances:    utterances,
			EnableContext: opts.EnableContext,
		})
		return err
	}); err != nil {
		return nil, err
	}
	guard.report(progressAnalyze)

	var rep *report.MeetingReport
	if err := p.stage(ctx, StageReport, func(context.Context) error {
		if results == nil {
			return errors.New("analyzer returned no results")
		}
		lang := language.ToISO2(transcript.Language)
		if lang == "" {
			lang = strings.TrimSpace(transcript.Language)
		}
		languageName := ""
		if lang != "" {
			languageName = language.DisplayName(lang)
		}
		rep = report.Build(report.Inputs{
			MeetingID:    results.MeetingID,
			Duration:     info.DurationSeconds,
			Language:     lang,
			LanguageName: languageName,
			Transcript:   transcript.Text,
			Utterances:   utterances,
			Intervals:    intervals,
			Analysis:     results,
		})
		return nil
	}); err != nil {
		return nil, err
	}
	guard.report(progressReport)

	rep.SetTiming(p.now().Sub(started).Seconds())
	logger.Info("meeting run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Float64("audio_seconds", rep.Duration),
		logging.Float64("processing_seconds", rep.ProcessingTimeSeconds),
		logging.Float64("realtime_factor", rep.RealtimeFactor),
		logging.Int("utterances", len(rep.Segments)),
		logging.Int("speakers", len(rep.Speakers)),
	)
	return rep, nil
}

func (p *Pipeline) validate(ctx context.Context, audioPath string) (audio.Info, error) {
	var info audio.Info
	if strings.TrimSpace(audioPath) == "" {
		return info, services.Wrap(services.ErrValidation, StageValidate, "stat", "audio path required", nil)
	}
	stat, err := os.Stat(audioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, services.Wrap(services.ErrValidation, StageValidate, "stat",
				fmt.Sprintf("audio file not found: %s", audioPath), nil)
		}
		return info, services.Wrap(services.ErrValidation, StageValidate, "stat", "", err)
	}
	if !stat.Mode().IsRegular() {
		return info, services.Wrap(services.ErrValidation, StageValidate, "stat",
			fmt.Sprintf("not a regular file: %s", audioPath), nil)
	}

	info, err = p.leaves.Audio.Probe(ctx, audioPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return info, ctxErr
		}
		return info, services.Wrap(services.ErrValidation, StageValidate, "probe", "unreadable audio", err)
	}

	duration := time.Duration(info.DurationSeconds * float64(time.Second))
	if p.settings.MaxDuration > 0 && duration > p.settings.MaxDuration {
		return info, services.Wrap(services.ErrValidation, StageValidate, "duration",
			fmt.Sprintf("recording is %.1f minutes, limit is %.1f", duration.Minutes(), p.settings.MaxDuration.Minutes()), nil)
	}
	if duration < p.settings.MinDuration || info.DurationSeconds <= 0 {
		return info, services.Wrap(services.ErrValidation, StageValidate, "duration",
			fmt.Sprintf("recording is %.2f seconds, minimum is %.2f", info.DurationSeconds, p.settings.MinDuration.Seconds()), nil)
	}
	return info, nil
}

func (p *Pipeline) createRunDir() (string, error) {
	if p.settings.WorkDir != "" {
		if err := os.MkdirAll(p.settings.WorkDir, 0o755); err != nil {
			return "", fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(p.settings.WorkDir, "run-*")
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// stage runs fn with the stage name on the context and converts any error
// into a *StageError.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		p.observe(name, 0, err)
		return &StageError{Stage: name, Err: err}
	}
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, p.logger)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	started := p.now()
	err := fn(stageCtx)
	elapsed := p.now().Sub(started)
	p.observe(name, elapsed, err)
	if err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return &StageError{Stage: name, Err: err}
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

func (p *Pipeline) observe(stage string, elapsed time.Duration, err error) {
	if p.observer != nil {
		p.observer(stage, elapsed, err)
	}
}
