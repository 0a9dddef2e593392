package analysis

import (
	"fmt"
	"strings"
)

const (
	topActionLimit   = 5
	topDecisionLimit = 3
)

// Summarize derives the executive summary from whatever phases succeeded.
// Failed or missing phases contribute nothing.
func Summarize(res *Results) ExecutiveSummary {
	summary := ExecutiveSummary{KeyHighlights: []string{}, Participants: []string{}}
	if res == nil {
		return summary
	}
	summary.MeetingID = res.MeetingID
	summary.Timestamp = res.Timestamp
	if res.Speakers != nil {
		summary.Participants = append([]string(nil), res.Speakers...)
	}

	if res.Actions.Succeeded() {
		actions := res.Actions.Value
		if n := len(actions.ActionItems); n > 0 {
			summary.KeyHighlights = append(summary.KeyHighlights, fmt.Sprintf("%d action items identified", n))
			summary.TopActions = append([]ActionItem(nil), actions.ActionItems[:min(n, topActionLimit)]...)
		}
		if n := len(actions.Decisions); n > 0 {
			summary.KeyHighlights = append(summary.KeyHighlights, fmt.Sprintf("%d decisions made", n))
			summary.TopDecisions = append([]Decision(nil), actions.Decisions[:min(n, topDecisionLimit)]...)
		}
	}

	if res.Sentiment.Succeeded() && !res.Sentiment.Value.OverallSentiment.empty() {
		overall := res.Sentiment.Value.OverallSentiment
		mood := orUnknown(overall.Mood)
		tone := orUnknown(overall.Tone)
		summary.KeyHighlights = append(summary.KeyHighlights, fmt.Sprintf("Meeting mood: %s, tone: %s", mood, tone))
		summary.OverallMood = mood
		summary.OverallTone = tone
	}

	if res.Context.Succeeded() {
		if n := len(res.Context.Value.RecurringThemes); n > 0 {
			summary.KeyHighlights = append(summary.KeyHighlights, fmt.Sprintf("%d recurring themes identified", n))
		}
	}
	return summary
}

func orUnknown(value string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return "unknown"
}
