package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"minutes/internal/analysis"
	"minutes/internal/config"
	"minutes/internal/history"
	"minutes/internal/logging"
	"minutes/internal/tasks"
	"minutes/internal/workflow"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var flags analysisFlags
	var outputPath string
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "analyze <recording>",
		Short: "Analyze a recording in this process",
		Long: "Run the full pipeline on one recording without a daemon: preprocessing,\n" +
			"diarization, transcription, emotion tagging and the LLM analysis phases.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve recording path: %w", err)
			}
			opts := flags.options()
			if err := workflow.ValidateSubmission(path, opts); err != nil {
				return err
			}

			logger, err := analyzeLogger(cfg, verbose)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var store analysis.HistoryStore
			if opts.EnableContext && cfg.Analysis.EnableContext {
				hist, err := history.Open(cfg)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: history unavailable, skipping context phase: %v\n", err)
				} else {
					defer hist.Close()
					store = hist
				}
			}

			factory := workflow.NewPipelineFactory(workflow.Shared{
				Config:  cfg,
				LLM:     workflow.NewCompleter(cfg),
				History: store,
			})
			runner, err := factory(runCtx, logger)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer func() {
				if err := runner.Release(); err != nil {
					logger.Warn("pipeline release failed", logging.Error(err))
				}
			}()

			progress := newProgressPrinter(cmd.ErrOrStderr())
			rep, err := runner.Run(runCtx, tasks.NewID(time.Now()), path, opts, progress.update)
			progress.finish()
			if err != nil {
				return fmt.Errorf("analyze %s: %w", filepath.Base(path), err)
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

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the JSON report to this file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mirror pipeline logs to stderr")
	return cmd
}

// analyzeLogger appends to <log_dir>/minutes-analyze.log, and to stderr when
// verbose.
func analyzeLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	outputs := []string{filepath.Join(cfg.Paths.LogDir, "minutes-analyze.log")}
	if verbose {
		outputs = append(outputs, "stderr")
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logging.NewComponentLogger(logger, "cli"), nil
}
