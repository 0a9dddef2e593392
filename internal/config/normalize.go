package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAudio()
	c.normalizeTranscription()
	c.normalizeServices()
	c.normalizeLLM()
	if err := c.normalizeAnalysis(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.InboxDir = strings.TrimSpace(c.Paths.InboxDir)
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("MINUTES_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeAudio() {
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = defaultFFmpegBinary
	}
	c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary)
	if c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.WhisperXModel = strings.TrimSpace(c.Transcription.WhisperXModel)
	if c.Transcription.WhisperXModel == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	c.Transcription.HFToken = strings.TrimSpace(c.Transcription.HFToken)
	if c.Transcription.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeServices() {
	c.Diarization.URL = strings.TrimRight(strings.TrimSpace(c.Diarization.URL), "/")
	if value, ok := os.LookupEnv("MINUTES_DIARIZATION_URL"); ok && c.Diarization.URL == "" {
		c.Diarization.URL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	c.Emotion.URL = strings.TrimRight(strings.TrimSpace(c.Emotion.URL), "/")
	if value, ok := os.LookupEnv("MINUTES_EMOTION_URL"); ok && c.Emotion.URL == "" {
		c.Emotion.URL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, key := range []string{"MINUTES_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeAnalysis() error {
	var err error
	if strings.TrimSpace(c.Analysis.HistoryPath) == "" {
		c.Analysis.HistoryPath = filepath.Join(c.Paths.DataDir, "history.db")
	}
	if c.Analysis.HistoryPath, err = expandPath(c.Analysis.HistoryPath); err != nil {
		return fmt.Errorf("analysis.history_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
