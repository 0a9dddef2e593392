// Package report defines the meeting report persisted for each task.
package report

import (
	"minutes/internal/analysis"
	"minutes/internal/fusion"
)

// DiarizationStats summarises the speaker segmentation.
type DiarizationStats struct {
	NumSegments  int                `json:"num_segments"`
	NumSpeakers  int                `json:"num_speakers"`
	SpeakerTimes map[string]float64 `json:"speaker_times"`
}

// MeetingReport is the complete analysis of one recording.
type MeetingReport struct {
	MeetingID        string                                      `json:"meeting_id"`
	Timestamp        string                                      `json:"timestamp"`
	Duration         float64                                     `json:"duration"`
	Language         string                                      `json:"language"`
	LanguageName     string                                      `json:"language_name,omitempty"`
	Speakers         []string                                    `json:"speakers"`
	FullTranscript   string                                      `json:"full_transcript"`
	Segments         []fusion.Utterance                          `json:"segments"`
	DiarizationStats DiarizationStats                            `json:"diarization_stats"`
	Actions          *analysis.Outcome[analysis.Actions]         `json:"actions"`
	Sentiment        *analysis.Outcome[analysis.Sentiment]       `json:"sentiment"`
	Context          *analysis.Outcome[analysis.ContextAnalysis] `json:"context"`
	ExecutiveSummary analysis.ExecutiveSummary                   `json:"executive_summary"`

	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	RealtimeFactor        float64 `json:"realtime_factor"`
}

// Inputs are the stage outputs a report is assembled from.
type Inputs struct {
	MeetingID    string
	Timestamp    string
	Duration     float64
	Language     string
	LanguageName string
	Transcript   string
	Utterances   []fusion.Utterance
	Intervals    []fusion.Interval
	Analysis     *analysis.Results
}

// Build assembles a report. Timing fields are left for the caller, which
// fills them once the report exists.
func Build(in Inputs) *MeetingReport {
	segments := in.Utterances
	if segments == nil {
		segments = []fusion.Utterance{}
	}
	speakers := fusion.Speakers(segments)
	rep := &MeetingReport{
		MeetingID:      in.MeetingID,
		Timestamp:      in.Timestamp,
		Duration:       in.Duration,
		Language:       in.Language,
		LanguageName:   in.LanguageName,
		Speakers:       speakers,
		FullTranscript: in.Transcript,
		Segments:       segments,
		DiarizationStats: DiarizationStats{
			NumSegments:  len(in.Intervals),
			NumSpeakers:  len(speakers),
			SpeakerTimes: fusion.SpeakerTimes(segments),
		},
	}
	if in.Analysis != nil {
		rep.Actions = in.Analysis.Actions
		rep.Sentiment = in.Analysis.Sentiment
		rep.Context = in.Analysis.Context
		rep.ExecutiveSummary = in.Analysis.Summary
		if rep.Timestamp == "" {
			rep.Timestamp = in.Analysis.Timestamp
		}
	}
	return rep
}

// SetTiming records processing time and the realtime factor.
func (r *MeetingReport) SetTiming(processingSeconds float64) {
	r.ProcessingTimeSeconds = processingSeconds
	if r.Duration > 0 {
		r.RealtimeFactor = processingSeconds / r.Duration
	}
}

// ActionItemCount is used by CLI listings.
func (r *MeetingReport) ActionItemCount() int {
	if r == nil || !r.Actions.Succeeded() {
		return 0
	}
	return len(r.Actions.Value.ActionItems)
}
