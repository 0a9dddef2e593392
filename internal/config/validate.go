package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate < 8000 {
		return errors.New("audio.sample_rate must be at least 8000")
	}
	if c.Audio.MaxDurationMinutes <= 0 {
		return errors.New("audio.max_duration_minutes must be positive")
	}
	if c.Audio.MinDurationSeconds < 0 {
		return errors.New("audio.min_duration_seconds must be >= 0")
	}
	if c.Audio.MinDurationSeconds >= c.Audio.MaxDurationMinutes*60 {
		return errors.New("audio.min_duration_seconds must be shorter than audio.max_duration_minutes")
	}
	return nil
}

func (c *Config) validateServices() error {
	if err := validateServiceURL("diarization.url", c.Diarization.URL); err != nil {
		return err
	}
	if c.Emotion.Enabled {
		if err := validateServiceURL("emotion.url", c.Emotion.URL); err != nil {
			return err
		}
	}
	return ensurePositiveMap(map[string]int{
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"diarization.timeout_seconds":   c.Diarization.TimeoutSeconds,
		"emotion.timeout_seconds":       c.Emotion.TimeoutSeconds,
	})
}

func (c *Config) validateLLM() error {
	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is not a valid URL: %w", err)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.ContextTopK <= 0 {
		return errors.New("analysis.context_top_k must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.max_concurrent_runs":      c.Workflow.MaxConcurrentRuns,
		"workflow.cleanup_interval_minutes": c.Workflow.CleanupIntervalMinutes,
		"workflow.inbox_settle_seconds":     c.Workflow.InboxSettleSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.ResultRetentionDays < 0 {
		return errors.New("workflow.result_retention_days must be >= 0")
	}
	return nil
}

func validateServiceURL(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
