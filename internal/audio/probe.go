package audio

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the pipeline reads.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

func parseProbe(output []byte) (ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioStreamCount returns the number of audio streams discovered.
func (r ProbeResult) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds prefers the container duration and falls back to the
// longest audio stream.
func (r ProbeResult) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 && !math.IsNaN(d) {
		return d
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		if d := parseFloat(stream.Duration); d > longest && !math.IsNaN(d) {
			longest = d
		}
	}
	return longest
}

// SampleRate returns the first audio stream's sample rate, or 0.
func (r ProbeResult) SampleRate() int {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			rate, err := strconv.Atoi(strings.TrimSpace(stream.SampleRate))
			if err == nil {
				return rate
			}
		}
	}
	return 0
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
