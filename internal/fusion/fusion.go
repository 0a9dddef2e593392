package fusion

import (
	"sort"
	"strings"
)

// UnknownSpeaker labels spans that no diarization interval overlaps.
const UnknownSpeaker = "UNKNOWN"

// Span is a timed piece of transcribed text.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the transcriber's view of a recording.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Spans    []Span `json:"segments"`
}

// Interval is a diarization turn attributed to one speaker label.
type Interval struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Utterance is a span with its assigned speaker and optional emotion tag.
type Utterance struct {
	Start             float64  `json:"start"`
	End               float64  `json:"end"`
	Speaker           string   `json:"speaker"`
	Text              string   `json:"text"`
	Emotion           string   `json:"emotion,omitempty"`
	EmotionConfidence *float64 `json:"emotion_confidence,omitempty"`
}

// Duration reports the utterance length in seconds, never negative.
func (u Utterance) Duration() float64 {
	if u.End <= u.Start {
		return 0
	}
	return u.End - u.Start
}

// Overlap returns the length of the shared time range of [aStart,aEnd] and
// [bStart,bEnd], or 0 when they are disjoint.
func Overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	overlap := min(aEnd, bEnd) - max(aStart, bStart)
	if overlap < 0 {
		return 0
	}
	return overlap
}

// Fuse labels each span with the speaker of the maximally overlapping
// interval. The result has one utterance per span, in span order.
func Fuse(spans []Span, intervals []Interval) []Utterance {
	out := make([]Utterance, 0, len(spans))
	for _, span := range spans {
		speaker := UnknownSpeaker
		best := 0.0
		for _, interval := range intervals {
			overlap := Overlap(span.Start, span.End, interval.Start, interval.End)
			if overlap > best {
				best = overlap
				speaker = interval.Speaker
			}
		}
		out = append(out, Utterance{
			Start:   span.Start,
			End:     span.End,
			Speaker: speaker,
			Text:    strings.TrimSpace(span.Text),
		})
	}
	return out
}

// Speakers returns the sorted unique speaker labels, UNKNOWN included.
func Speakers(utterances []Utterance) []string {
	return uniqueSpeakers(utterances, true)
}

// Participants returns the sorted unique speaker labels without UNKNOWN.
func Participants(utterances []Utterance) []string {
	return uniqueSpeakers(utterances, false)
}

func uniqueSpeakers(utterances []Utterance, includeUnknown bool) []string {
	seen := make(map[string]struct{}, len(utterances))
	out := make([]string, 0)
	for _, u := range utterances {
		if !includeUnknown && u.Speaker == UnknownSpeaker {
			continue
		}
		if _, ok := seen[u.Speaker]; ok {
			continue
		}
		seen[u.Speaker] = struct{}{}
		out = append(out, u.Speaker)
	}
	sort.Strings(out)
	return out
}

// SpeakerTimes sums utterance durations per speaker label.
func SpeakerTimes(utterances []Utterance) map[string]float64 {
	times := make(map[string]float64)
	for _, u := range utterances {
		times[u.Speaker] += u.Duration()
	}
	return times
}
