package analysis

import (
	"context"
	"fmt"
	"strings"

	"minutes/internal/fusion"
	"minutes/internal/history"
)

// HistoryStore retrieves and stores meeting summaries for the context phase.
type HistoryStore interface {
	Query(ctx context.Context, text string, k int) ([]history.Document, error)
	Add(ctx context.Context, text string, meta history.Metadata) error
}

// querySummary describes the current meeting for history retrieval.
func querySummary(utterances []fusion.Utterance, actions *Actions) string {
	lines := make([]string, 0, querySummaryUtterances+8)
	if len(utterances) > 0 {
		lines = append(lines, "TRANSCRIPT SUMMARY:")
		limit := min(len(utterances), querySummaryUtterances)
		for _, u := range utterances[:limit] {
			lines = append(lines, fmt.Sprintf("%s: %s", u.Speaker, u.Text))
		}
	}
	if actions != nil && len(actions.ActionItems) > 0 {
		lines = append(lines, "\nACTION ITEMS:")
		for _, item := range actions.ActionItems {
			lines = append(lines, fmt.Sprintf("- %s (%s)", item.Task, assigneeOrUnknown(item.Assignee)))
		}
	}
	if actions != nil && len(actions.Decisions) > 0 {
		lines = append(lines, "\nDECISIONS:")
		for _, decision := range actions.Decisions {
			lines = append(lines, "- "+decision.Decision)
		}
	}
	return strings.Join(lines, "\n")
}

func formatPreviousContext(docs []history.Document) string {
	if len(docs) == 0 {
		return noPreviousContext
	}
	lines := make([]string, 0, len(docs)*3)
	for i, doc := range docs {
		lines = append(lines, fmt.Sprintf("--- Previous Meeting %d ---", i+1), doc.Text, "")
	}
	return strings.Join(lines, "\n")
}

// storageText is the document persisted for future retrieval.
func storageText(meetingID, timestamp string, participants []string, utterances []fusion.Utterance, actions *Actions) string {
	lines := []string{
		"Meeting ID: " + meetingID,
		"Date: " + timestamp,
		"Participants: " + strings.Join(participants, ", "),
		"",
		"SUMMARY:",
	}
	for _, u := range utterances {
		lines = append(lines, fmt.Sprintf("%s: %s", u.Speaker, u.Text))
	}
	lines = append(lines, "")
	if actions != nil && len(actions.ActionItems) > 0 {
		lines = append(lines, "ACTION ITEMS:")
		for _, item := range actions.ActionItems {
			lines = append(lines, fmt.Sprintf("- %s (Assigned to: %s)", item.Task, assigneeOrUnknown(item.Assignee)))
		}
	}
	if actions != nil && len(actions.Decisions) > 0 {
		lines = append(lines, "\nDECISIONS:")
		for _, decision := range actions.Decisions {
			lines = append(lines, "- "+decision.Decision)
		}
	}
	return strings.Join(lines, "\n")
}

func assigneeOrUnknown(value string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fusion.UnknownSpeaker
}
