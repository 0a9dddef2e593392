package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"minutes/internal/analysis"
	"minutes/internal/report"
)

func printReport(out io.Writer, rep *report.MeetingReport, colorize bool) {
	if rep == nil {
		return
	}
	fmt.Fprintf(out, "Meeting %s\n", rep.MeetingID)
	if rep.Timestamp != "" {
		fmt.Fprintf(out, "Recorded: %s\n", rep.Timestamp)
	}
	fmt.Fprintf(out, "Duration: %s\n", formatSeconds(rep.Duration))
	fmt.Fprintf(out, "Language: %s\n", formatLanguage(rep.Language, rep.LanguageName))
	if rep.ProcessingTimeSeconds > 0 {
		fmt.Fprintf(out, "Processing: %s (%.2fx realtime)\n", formatSeconds(rep.ProcessingTimeSeconds), rep.RealtimeFactor)
	}

	if rows := speakerRows(rep); len(rows) > 0 {
		printSection(out, "Speakers", colorize)
		fmt.Fprintln(out, renderTable([]column{
			{header: "Speaker"},
			{header: "Talk time", align: text.AlignRight},
			{header: "Share", align: text.AlignRight},
		}, rows))
	}

	summary := rep.ExecutiveSummary
	if len(summary.KeyHighlights) > 0 {
		printSection(out, "Highlights", colorize)
		for _, line := range summary.KeyHighlights {
			fmt.Fprintf(out, "- %s\n", line)
		}
	}
	if rep.Actions.Succeeded() {
		printActions(out, rep.Actions.Value, colorize)
	}
	if summary.OverallMood != "" || summary.OverallTone != "" {
		printSection(out, "Mood", colorize)
		fmt.Fprintf(out, "Mood: %s\n", valueOr(summary.OverallMood, "unknown"))
		fmt.Fprintf(out, "Tone: %s\n", valueOr(summary.OverallTone, "unknown"))
	}
	if rep.Context.Succeeded() {
		printContext(out, rep.Context.Value, colorize)
	}

	printSection(out, "Analysis phases", colorize)
	fmt.Fprintln(out, phaseLine("Actions", rep.Actions != nil, rep.Actions.Succeeded(), outcomeError(rep.Actions), colorize))
	fmt.Fprintln(out, phaseLine("Sentiment", rep.Sentiment != nil, rep.Sentiment.Succeeded(), outcomeError(rep.Sentiment), colorize))
	fmt.Fprintln(out, phaseLine("Context", rep.Context != nil, rep.Context.Succeeded(), outcomeError(rep.Context), colorize))
}

func printSection(out io.Writer, title string, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func printActions(out io.Writer, actions *analysis.Actions, colorize bool) {
	if len(actions.ActionItems) > 0 {
		printSection(out, "Action items", colorize)
		rows := make([][]string, 0, len(actions.ActionItems))
		for _, item := range actions.ActionItems {
			rows = append(rows, []string{item.Assignee, item.Task, valueOr(item.Deadline, "-"), valueOr(item.Priority, "-")})
		}
		fmt.Fprintln(out, renderTable([]column{
			{header: "Assignee"},
			{header: "Task", maxWidth: 60},
			{header: "Deadline"},
			{header: "Priority"},
		}, rows))
	}
	if len(actions.Decisions) > 0 {
		printSection(out, "Decisions", colorize)
		for _, decision := range actions.Decisions {
			if decision.DecisionMaker != "" {
				fmt.Fprintf(out, "- %s (%s)\n", decision.Decision, decision.DecisionMaker)
				continue
			}
			fmt.Fprintf(out, "- %s\n", decision.Decision)
		}
	}
	if len(actions.FollowUps) > 0 {
		printSection(out, "Follow-ups", colorize)
		for _, followUp := range actions.FollowUps {
			fmt.Fprintf(out, "- %s\n", followUp.Topic)
		}
	}
}

func printContext(out io.Writer, ctx *analysis.ContextAnalysis, colorize bool) {
	if len(ctx.RecurringThemes) == 0 && len(ctx.MissingFollowups) == 0 {
		return
	}
	printSection(out, "Across meetings", colorize)
	for _, theme := range ctx.RecurringThemes {
		fmt.Fprintf(out, "- Recurring: %s\n", theme.Theme)
	}
	for _, missing := range ctx.MissingFollowups {
		fmt.Fprintf(out, "- Not followed up: %s\n", missing.Item)
	}
}

func speakerRows(rep *report.MeetingReport) [][]string {
	times := rep.DiarizationStats.SpeakerTimes
	if len(times) == 0 {
		return nil
	}
	var total float64
	speakers := make([]string, 0, len(times))
	for speaker, seconds := range times {
		speakers = append(speakers, speaker)
		total += seconds
	}
	slices.SortFunc(speakers, func(a, b string) int {
		if times[a] != times[b] {
			if times[a] > times[b] {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	rows := make([][]string, 0, len(speakers))
	for _, speaker := range speakers {
		share := 0.0
		if total > 0 {
			share = times[speaker] / total * 100
		}
		rows = append(rows, []string{speaker, formatSeconds(times[speaker]), fmt.Sprintf("%.0f%%", share)})
	}
	return rows
}

func outcomeError[T any](o *analysis.Outcome[T]) string {
	if o == nil {
		return ""
	}
	return o.Error
}

func phaseLine(label string, present, succeeded bool, errText string, colorize bool) string {
	switch {
	case !present:
		return renderStatusLine(label, statusInfo, "Skipped", colorize)
	case succeeded:
		return renderStatusLine(label, statusOK, "", colorize)
	default:
		return renderStatusLine(label, statusError, valueOr(errText, "no result"), colorize)
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func formatLanguage(code, name string) string {
	switch {
	case code == "":
		return "unknown"
	case name == "":
		return code
	default:
		return fmt.Sprintf("%s (%s)", name, code)
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
