// Command minutesd runs the meeting analysis daemon: the task workflow, the
// local control API, the inbox watcher and retention.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"minutes/internal/config"
	"minutes/internal/daemonrun"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "minutesd",
		Short:         "Meeting analysis daemon",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: logLevel,
				Version:  version,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
