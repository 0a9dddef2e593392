// Package deps reports which external binaries the pipeline can run.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"minutes/internal/config"
	"minutes/internal/services/whisperx"
)

// Requirement defines an external binary minutes relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries needed by the audio and transcription
// stages for cfg.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg, ffprobe := "ffmpeg", "ffprobe"
	if cfg != nil {
		ffmpeg = cfg.Audio.FFmpegBinary
		ffprobe = cfg.Audio.FFprobeBinary
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Required for resampling and clip extraction"},
		{Name: "FFprobe", Command: ffprobe, Description: "Required for duration probing"},
		{Name: "uvx", Command: whisperx.UVXCommand, Description: "Required for WhisperX transcription"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			status.Path = resolved
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
