package config

const (
	defaultConfigPath             = "~/.config/minutes/config.toml"
	defaultDataDir                = "~/.local/share/minutes"
	defaultLogDir                 = "~/.local/share/minutes/logs"
	defaultAPIBind                = "127.0.0.1:7510"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultSampleRate             = 16000
	defaultMaxDurationMinutes     = 120
	defaultMinDurationSeconds     = 1.0
	defaultWhisperXModel          = "large-v3"
	defaultVADMethod              = "silero"
	defaultTranscriptionTimeout   = 3600
	defaultDiarizationURL         = "http://127.0.0.1:7600"
	defaultDiarizationTimeout     = 1800
	defaultEmotionURL             = "http://127.0.0.1:7601"
	defaultEmotionTimeout         = 30
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/minutes-app/minutes"
	defaultLLMTitle               = "Minutes Meeting Analysis"
	defaultLLMTimeoutSeconds      = 120
	defaultLLMTemperature         = 0.3
	defaultLLMMaxTokens           = 2000
	defaultContextTopK            = 5
	defaultMaxConcurrentRuns      = 2
	defaultResultRetentionDays    = 7
	defaultCleanupIntervalMinutes = 60
	defaultInboxSettleSeconds     = 5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Audio: Audio{
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			SampleRate:         defaultSampleRate,
			MaxDurationMinutes: defaultMaxDurationMinutes,
			MinDurationSeconds: defaultMinDurationSeconds,
			Denoise:            true,
			NormalizeLoudness:  true,
		},
		Transcription: Transcription{
			WhisperXModel:  defaultWhisperXModel,
			VADMethod:      defaultVADMethod,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Diarization: Diarization{
			URL:            defaultDiarizationURL,
			TimeoutSeconds: defaultDiarizationTimeout,
		},
		Emotion: Emotion{
			Enabled:        true,
			URL:            defaultEmotionURL,
			TimeoutSeconds: defaultEmotionTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
		},
		Analysis: Analysis{
			EnableContext: true,
			ContextTopK:   defaultContextTopK,
		},
		Workflow: Workflow{
			MaxConcurrentRuns:      defaultMaxConcurrentRuns,
			ResultRetentionDays:    defaultResultRetentionDays,
			CleanupIntervalMinutes: defaultCleanupIntervalMinutes,
			InboxSettleSeconds:     defaultInboxSettleSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
