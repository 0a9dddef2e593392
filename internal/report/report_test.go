package report

import (
	"encoding/json"
	"strings"
	"testing"

	"minutes/internal/analysis"
	"minutes/internal/fusion"
)

func TestBuildComputesDiarizationStats(t *testing.T) {
	rep := Build(Inputs{
		MeetingID: "task_1",
		Duration:  10,
		Utterances: []fusion.Utterance{
			{Start: 0, End: 4, Speaker: "SPEAKER_00", Text: "a"},
			{Start: 4, End: 6, Speaker: fusion.UnknownSpeaker, Text: "b"},
		},
		Intervals: []fusion.Interval{{Start: 0, End: 4, Speaker: "SPEAKER_00"}, {Start: 7, End: 9, Speaker: "SPEAKER_01"}},
		Analysis:  &analysis.Results{Timestamp: "2026-01-01T00:00:00Z"},
	})
	if rep.DiarizationStats.NumSegments != 2 || rep.DiarizationStats.NumSpeakers != 2 {
		t.Fatalf("unexpected stats %+v", rep.DiarizationStats)
	}
	if rep.DiarizationStats.SpeakerTimes["SPEAKER_00"] != 4 {
		t.Fatalf("unexpected speaker times %v", rep.DiarizationStats.SpeakerTimes)
	}
	if rep.Timestamp != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected analysis timestamp fallback, got %q", rep.Timestamp)
	}
	rep.SetTiming(5)
	if rep.RealtimeFactor != 0.5 {
		t.Fatalf("expected realtime factor 0.5, got %v", rep.RealtimeFactor)
	}
}

func TestReportJSONKeepsNullContextAndErrorMarkers(t *testing.T) {
	rep := Build(Inputs{
		MeetingID: "task_2",
		Analysis: &analysis.Results{
			Actions:   &analysis.Outcome[analysis.Actions]{Error: "phase failure: actions: llm request: timeout"},
			Sentiment: &analysis.Outcome[analysis.Sentiment]{Value: &analysis.Sentiment{}},
		},
	})
	encoded, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(encoded)
	for _, fragment := range []string{`"context":null`, `"actions":{"error":"phase failure: actions: llm request: timeout"}`, `"segments":[]`} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %s in %s", fragment, text)
		}
	}

	var decoded MeetingReport
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Actions.Succeeded() || decoded.Context != nil || !decoded.Sentiment.Succeeded() {
		t.Fatalf("phase outcomes did not survive persistence: %+v", decoded)
	}
}
