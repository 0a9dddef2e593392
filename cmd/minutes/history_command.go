package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"minutes/internal/history"
)

const historyExcerptWidth = 80

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the meeting history used for cross-meeting context",
	}
	historyCmd.AddCommand(newHistorySearchCommand(ctx))
	historyCmd.AddCommand(newHistoryRecentCommand(ctx))
	return historyCmd
}

func newHistorySearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "search <text>...",
		Short: "Find past meetings similar to the given text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withHistory(ctx, func(store *history.Store) error {
				docs, err := store.Query(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, docs)
				}
				printHistory(cmd, docs, true)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "k", 5, "Maximum number of meetings to return")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func newHistoryRecentCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently stored meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				docs, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, docs)
				}
				printHistory(cmd, docs, false)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of meetings to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func printHistory(cmd *cobra.Command, docs []history.Document, withScore bool) {
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No meetings found")
		return
	}
	columns := []column{
		{header: "Meeting"},
		{header: "Recorded"},
		{header: "Participants", maxWidth: 30},
		{header: "Summary", maxWidth: historyExcerptWidth},
	}
	if withScore {
		columns = append(columns, column{header: "Score", align: text.AlignRight})
	}
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		row := []string{
			doc.Metadata.MeetingID,
			valueOr(doc.Metadata.Timestamp, "-"),
			valueOr(strings.Join(doc.Metadata.Participants, ", "), "-"),
			excerpt(doc.Text, historyExcerptWidth),
		}
		if withScore {
			row = append(row, fmt.Sprintf("%.3f", doc.Score))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(columns, rows))
}

// excerpt collapses whitespace and cuts text to limit runes.
func excerpt(value string, limit int) string {
	clean := strings.Join(strings.Fields(value), " ")
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return clean
}
