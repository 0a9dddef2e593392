package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/fusion"
	langpkg "minutes/internal/language"
	"minutes/internal/logging"
	"minutes/internal/services"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg    Config
	logger *slog.Logger
	runner CommandRunner
}

// Option customizes the service.
type Option func(*Service)

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "whisperx"),
		runner: runCommand,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Transcribe runs WhisperX on a mono WAV file and returns the timed
// segments plus the detected language. Output files are written to workDir.
// An empty language lets WhisperX detect it.
func (s *Service) Transcribe(ctx context.Context, wavPath, workDir, language string) (fusion.Transcript, error) {
	var result fusion.Transcript
	if strings.TrimSpace(wavPath) == "" {
		return result, services.Wrap(services.ErrValidation, "transcribe", "whisperx", "source path required", nil)
	}
	if workDir == "" {
		workDir = filepath.Dir(wavPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	args := s.buildArgs(wavPath, workDir, language)
	if err := s.runner(ctx, UVXCommand, args...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "transcribe", "whisperx",
				fmt.Sprintf("exceeded %ds", s.cfg.TimeoutSeconds), err)
		}
		return result, services.Wrap(services.ErrExternalTool, "transcribe", "whisperx", "run failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	payload, err := loadPayload(filepath.Join(workDir, baseName+".json"))
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcribe", "read output", "", err)
	}

	result = payload.transcript()
	if result.Language == "" {
		result.Language = langpkg.ToISO2(language)
	}
	s.logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.String("model", s.Model()),
		logging.String("language", result.Language),
		logging.Int("segments", len(result.Spans)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir, language string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--best_of", BestOf,
		"--temperature", Temperature,
		"--patience", Patience,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := langpkg.ToISO2(language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), 400))
	}
	return nil
}

func tail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

func loadPayload(jsonPath string) (whisperXPayload, error) {
	var payload whisperXPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

func (p whisperXPayload) transcript() fusion.Transcript {
	spans := make([]fusion.Span, 0, len(p.Segments))
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		spans = append(spans, fusion.Span{Start: seg.Start, End: seg.End, Text: text})
		parts = append(parts, text)
	}
	return fusion.Transcript{
		Text:     strings.Join(parts, " "),
		Language: langpkg.ToISO2(p.Language),
		Spans:    spans,
	}
}
