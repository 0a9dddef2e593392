package whisperx

import "minutes/internal/config"

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Model is the WhisperX model to use (e.g., "large-v3-turbo").
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// VADMethod selects the voice activity detection method ("silero" or "pyannote").
	VADMethod string
	// HFToken is the Hugging Face token for pyannote VAD.
	HFToken string
	// TimeoutSeconds bounds a single transcription run. Zero disables the limit.
	TimeoutSeconds int
}

// ConfigFrom maps the transcription section of the main configuration.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Model:          cfg.Transcription.WhisperXModel,
		CUDAEnabled:    cfg.Transcription.CUDAEnabled,
		VADMethod:      cfg.Transcription.VADMethod,
		HFToken:        cfg.Transcription.HFToken,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}
}

// WhisperX configuration constants.
const (
	DefaultModel      = "large-v3"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	VADOnset          = "0.08"
	VADOffset         = "0.07"
	BeamSize          = "5"
	BestOf            = "5"
	Temperature       = "0.0"
	Patience          = "1.0"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// UVXCommand launches WhisperX.
const UVXCommand = "uvx"
