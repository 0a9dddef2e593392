package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/tasks"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags analysisFlags
	var upload bool
	var wait bool
	var pollInterval time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit <recording>",
		Short: "Queue a recording on the running daemon",
		Long: "Submit a recording to minutesd. By default the daemon reads the file from\n" +
			"its own filesystem; use --upload when the daemon runs elsewhere.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			opts := flags.options()

			var resp api.SubmitResponse
			if upload {
				resp, err = client.Upload(cmd.Context(), args[0], opts)
			} else {
				path, absErr := filepath.Abs(args[0])
				if absErr != nil {
					return fmt.Errorf("resolve recording path: %w", absErr)
				}
				resp, err = client.Submit(cmd.Context(), path, opts)
			}
			if err != nil {
				return err
			}

			if !wait {
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s\n", resp.TaskID, resp.Status)
				return nil
			}

			task, err := waitForTask(cmd.Context(), client, resp.TaskID, pollInterval, newProgressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if task.Status == tasks.StatusFailed {
				return fmt.Errorf("task %s failed: %s", task.ID, valueOr(task.Error, "unknown error"))
			}
			rep, err := client.Result(cmd.Context(), task.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, rep)
			}
			out := cmd.OutOrStdout()
			printReport(out, rep, shouldColorize(out))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&upload, "upload", false, "Stream the file to the daemon instead of sending its path")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish and print its report")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "How often to poll while waiting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

type taskSource interface {
	Task(ctx context.Context, id string) (tasks.Task, error)
}

// waitForTask polls until the task reaches a terminal status.
func waitForTask(ctx context.Context, src taskSource, id string, interval time.Duration, progress *progressPrinter) (tasks.Task, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer progress.finish()

	for {
		task, err := src.Task(ctx, id)
		if err != nil {
			return task, err
		}
		progress.update(task.Progress)
		if task.Status.IsTerminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}
