package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"minutes/internal/logs"
	"minutes/internal/workflow"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon or task logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "minutesd.log")
			if id := strings.TrimSpace(taskID); id != "" {
				path = workflow.NewTaskLogger(cfg).Path(id)
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log lines at %s\n", path)
				}
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(followCtx, path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Show the log of one task instead of the daemon log")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	return cmd
}
