package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Audio contains ffmpeg settings and the accepted recording length window.
type Audio struct {
	FFmpegBinary       string  `toml:"ffmpeg_binary"`
	FFprobeBinary      string  `toml:"ffprobe_binary"`
	SampleRate         int     `toml:"sample_rate"`
	MaxDurationMinutes float64 `toml:"max_duration_minutes"`
	MinDurationSeconds float64 `toml:"min_duration_seconds"`
	Denoise            bool    `toml:"denoise"`
	NormalizeLoudness  bool    `toml:"normalize_loudness"`
}

// Transcription contains WhisperX settings.
type Transcription struct {
	WhisperXModel  string `toml:"whisperx_model"`
	CUDAEnabled    bool   `toml:"cuda_enabled"`
	VADMethod      string `toml:"vad_method"`
	HFToken        string `toml:"hf_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Diarization points at the speaker diarization service.
type Diarization struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Emotion points at the speech emotion classification service.
type Emotion struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains the chat completion connection settings used by analysis.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Referer        string  `toml:"referer"`
	Title          string  `toml:"title"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
}

// Analysis controls the post-transcription analysis phases.
type Analysis struct {
	EnableContext  bool   `toml:"enable_context"`
	ContextTopK    int    `toml:"context_top_k"`
	ParallelPhases bool   `toml:"parallel_phases"`
	HistoryPath    string `toml:"history_path"`
}

// Workflow contains task execution and retention settings.
type Workflow struct {
	MaxConcurrentRuns      int `toml:"max_concurrent_runs"`
	ResultRetentionDays    int `toml:"result_retention_days"`
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`
	InboxSettleSeconds     int `toml:"inbox_settle_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for minutes.
//
// Configuration sections by subsystem:
//   - Paths: data, log and inbox directories plus the API bind address
//   - Audio: ffmpeg binaries, resampling and duration limits
//   - Transcription: WhisperX model and device
//   - Diarization: speaker diarization service
//   - Emotion: optional per-utterance emotion service
//   - LLM: chat completion endpoint used by the analysis phases
//   - Analysis: context retrieval and phase scheduling
//   - Workflow: concurrency and result retention
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Audio         Audio         `toml:"audio"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Emotion       Emotion       `toml:"emotion"`
	LLM           LLM           `toml:"llm"`
	Analysis      Analysis      `toml:"analysis"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config file or in the
// working directory is loaded first so credentials can live outside the TOML file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ".env")
		if local != candidates[0] {
			candidates = append(candidates, local)
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("minutes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.ResultsDir(), c.WorkDir(), c.UploadsDir()}
	if c.Paths.InboxDir != "" {
		dirs = append(dirs, c.Paths.InboxDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ResultsDir is where finished meeting reports are persisted.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.Paths.DataDir, "results")
}

// WorkDir holds per-run scratch directories.
func (c *Config) WorkDir() string {
	return filepath.Join(c.Paths.DataDir, "work")
}

// UploadsDir receives recordings posted to the control API.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.Paths.DataDir, "uploads")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "minutesd.lock")
}

// MaxDuration returns the longest accepted recording.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Audio.MaxDurationMinutes * float64(time.Minute))
}

// MinDuration returns the shortest accepted recording.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.Audio.MinDurationSeconds * float64(time.Second))
}

// ResultRetention converts workflow.result_retention_days to a duration.
func (c *Config) ResultRetention() time.Duration {
	return time.Duration(c.Workflow.ResultRetentionDays) * 24 * time.Hour
}

// CleanupInterval converts workflow.cleanup_interval_minutes to a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Workflow.CleanupIntervalMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings consumed by services/llm.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		Temperature:    c.LLM.Temperature,
		MaxTokens:      c.LLM.MaxTokens,
	}
}
