package workflow

import (
	"context"
	"log/slog"

	"minutes/internal/analysis"
	"minutes/internal/audio"
	"minutes/internal/config"
	"minutes/internal/fusion"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/services/diarization"
	"minutes/internal/services/emotion"
	"minutes/internal/services/llm"
	"minutes/internal/services/whisperx"
)

// Shared holds the long-lived collaborators every run reuses.
type Shared struct {
	Config  *config.Config
	LLM     analysis.Completer
	History analysis.HistoryStore
	Metrics *metrics.Metrics
}

// NewPipelineFactory builds production pipelines: ffmpeg audio processing,
// WhisperX transcription, the diarization and emotion services and the LLM
// analysis orchestrator.
func NewPipelineFactory(shared Shared) Factory {
	return func(_ context.Context, logger *slog.Logger) (Runner, error) {
		cfg := shared.Config
		processor := audio.NewProcessor(cfg, logger)

		var tagger fusion.Tagger
		if cfg.Emotion.Enabled {
			tagger = emotion.NewFromConfig(cfg, processor, logger)
		}

		orchestrator := analysis.NewFromConfig(cfg, shared.LLM, shared.History, logger,
			analysis.WithPhaseObserver(shared.Metrics.ObservePhase),
		)

		p, err := pipeline.New(pipeline.SettingsFrom(cfg), pipeline.Leaves{
			Audio:       processor,
			Transcriber: whisperx.NewService(whisperx.ConfigFrom(cfg), logger),
			Diarizer:    diarization.NewFromConfig(cfg, logger),
			Tagger:      tagger,
			Analyzer:    orchestrator,
		}, logger, pipeline.WithStageObserver(shared.Metrics.ObserveStage))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewCompleter builds the LLM client from the [llm] section.
func NewCompleter(cfg *config.Config) *llm.Client {
	llmCfg := cfg.GetLLM()
	return llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
		Temperature:    llmCfg.Temperature,
		MaxTokens:      llmCfg.MaxTokens,
	})
}
