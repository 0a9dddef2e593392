package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var apiFlag string
	var configFlag string

	ctx := newCommandContext(&apiFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "minutes",
		Short:         "Meeting recording analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Address of the minutesd control API (defaults to paths.api_bind)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newTasksCommand(ctx))
	rootCmd.AddCommand(newResultCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
