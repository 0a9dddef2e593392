package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/services"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Info is the probed description of a recording.
type Info struct {
	DurationSeconds float64
	SampleRate      int
	AudioStreams    int
	Format          string
}

// Processor runs ffmpeg and ffprobe.
type Processor struct {
	ffmpeg     string
	ffprobe    string
	sampleRate int
	denoise    bool
	loudnorm   bool
	run        Runner
	logger     *slog.Logger
}

// Option customizes the processor.
type Option func(*Processor)

// WithRunner replaces command execution, mainly for tests.
func WithRunner(run Runner) Option {
	return func(p *Processor) {
		if run != nil {
			p.run = run
		}
	}
}

// NewProcessor builds a processor from the audio config section.
func NewProcessor(cfg *config.Config, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		ffmpeg:     strings.TrimSpace(cfg.Audio.FFmpegBinary),
		ffprobe:    strings.TrimSpace(cfg.Audio.FFprobeBinary),
		sampleRate: cfg.Audio.SampleRate,
		denoise:    cfg.Audio.Denoise,
		loudnorm:   cfg.Audio.NormalizeLoudness,
		run:        execRunner,
		logger:     logging.NewComponentLogger(logger, "audio"),
	}
	if p.ffmpeg == "" {
		p.ffmpeg = "ffmpeg"
	}
	if p.ffprobe == "" {
		p.ffprobe = "ffprobe"
	}
	if p.sampleRate <= 0 {
		p.sampleRate = 16000
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SampleRate reports the target sample rate for resampled audio.
func (p *Processor) SampleRate() int { return p.sampleRate }

// Probe inspects path with ffprobe.
func (p *Processor) Probe(ctx context.Context, path string) (Info, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Info{}, errors.New("ffprobe inspect: empty path")
	}
	output, err := p.run(ctx, p.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "", "ffprobe", strings.TrimSpace(string(output)), err)
	}
	result, err := parseProbe(output)
	if err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "", "ffprobe", "decode output", err)
	}
	return Info{
		DurationSeconds: result.DurationSeconds(),
		SampleRate:      result.SampleRate(),
		AudioStreams:    result.AudioStreamCount(),
		Format:          result.Format.FormatName,
	}, nil
}

// Resample writes a mono 16-bit PCM WAV at the target sample rate to outPath.
func (p *Processor) Resample(ctx context.Context, inPath, outPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", inPath,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(p.sampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
	return p.ffmpegRun(ctx, "resample", args)
}

// Preprocess applies the configured filters to a resampled WAV. With every
// filter disabled it copies the audio unchanged.
func (p *Processor) Preprocess(ctx context.Context, inPath, outPath string) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", inPath}
	if filters := p.filterChain(); filters != "" {
		args = append(args, "-af", filters)
	}
	args = append(args, "-ac", "1", "-ar", strconv.Itoa(p.sampleRate), "-c:a", "pcm_s16le", outPath)
	return p.ffmpegRun(ctx, "preprocess", args)
}

// ExtractRange cuts [start,end) seconds from inPath into a WAV at outPath.
func (p *Processor) ExtractRange(ctx context.Context, inPath string, start, end float64, outPath string) error {
	if end <= start {
		return services.Wrap(services.ErrValidation, "", "extract range", fmt.Sprintf("empty range %.3f-%.3f", start, end), nil)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end - start),
		"-i", inPath,
		"-ac", "1", "-ar", strconv.Itoa(p.sampleRate), "-c:a", "pcm_s16le",
		outPath,
	}
	return p.ffmpegRun(ctx, "extract range", args)
}

func (p *Processor) filterChain() string {
	var filters []string
	if p.denoise {
		filters = append(filters, "afftdn=nf=-25")
	}
	if p.loudnorm {
		filters = append(filters, "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	return strings.Join(filters, ",")
}

func (p *Processor) ffmpegRun(ctx context.Context, operation string, args []string) error {
	p.logger.Debug("running ffmpeg", logging.String("operation", operation), logging.Any("args", args))
	output, err := p.run(ctx, p.ffmpeg, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, "", "ffmpeg "+operation, strings.TrimSpace(string(output)), err)
	}
	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
