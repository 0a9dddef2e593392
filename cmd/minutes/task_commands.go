package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/tasks"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := client.Task(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, task)
			}
			out := cmd.OutOrStdout()
			printTask(out, task, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func printTask(out io.Writer, task tasks.Task, colorize bool) {
	fmt.Fprintf(out, "Task %s\n", task.ID)
	fmt.Fprintln(out, renderStatusLine("Status", taskStatusKind(task.Status), taskStatusLabel(task.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, formatProgress(task), colorize))
	fmt.Fprintln(out, renderStatusLine("File", statusInfo, task.FileRef, colorize))
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatDisplayTime(task.CreatedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, formatDisplayTime(task.UpdatedAt), colorize))
	if task.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, task.Error, colorize))
	}
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter tasks.Status
			if strings.TrimSpace(statusFilter) != "" {
				parsed, err := tasks.ParseStatus(statusFilter)
				if err != nil {
					return err
				}
				filter = parsed
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := client.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			list = filterTasks(list, filter)
			if jsonOutput {
				return writeJSON(cmd, api.TaskListResponse{Tasks: list})
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No tasks")
				return nil
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "Task"},
				{header: "File", maxWidth: 40},
				{header: "Status"},
				{header: "Progress", align: text.AlignRight},
				{header: "Updated"},
			}, buildTaskRows(list)))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show tasks with this status (pending, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func filterTasks(list []tasks.Task, status tasks.Status) []tasks.Task {
	if status == "" {
		return list
	}
	filtered := make([]tasks.Task, 0, len(list))
	for _, task := range list {
		if task.Status == status {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

func buildTaskRows(list []tasks.Task) [][]string {
	rows := make([][]string, 0, len(list))
	for _, task := range list {
		rows = append(rows, []string{
			task.ID,
			filepath.Base(task.FileRef),
			taskStatusLabel(task.Status),
			fmt.Sprintf("%d%%", task.Progress),
			formatDisplayTime(task.UpdatedAt),
		})
	}
	return rows
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Show the report of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			rep, err := client.Result(cmd.Context(), id)
			if err != nil {
				if api.IsNotReady(err) {
					return fmt.Errorf("task %s has not finished yet (check with `minutes status %s`)", id, id)
				}
				return err
			}
			if outputPath != "" {
				if err := writeJSONFile(outputPath, rep); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote report to %s\n", outputPath)
			}
			if jsonOutput {
				return writeJSON(cmd, rep)
			}
			out := cmd.OutOrStdout()
			printReport(out, rep, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the JSON report to this file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop finished tasks and stored reports older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := client.Cleanup(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks and %d stored reports\n", result.TasksRemoved, result.ResultsRemoved)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age threshold such as 72h (0 uses workflow.result_retention_days)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func formatProgress(task tasks.Task) string {
	if task.Status.IsTerminal() || task.Status == tasks.StatusPending {
		return fmt.Sprintf("%d%%", task.Progress)
	}
	return fmt.Sprintf("%d%% (%s)", task.Progress, stageLabel(task.Progress))
}

func formatDisplayTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
