package main

import (
	"github.com/spf13/cobra"

	"minutes/internal/pipeline"
)

// analysisFlags are the per-run options shared by analyze and submit.
type analysisFlags struct {
	speakers  int
	language  string
	noEmotion bool
	noContext bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.speakers, "speakers", "s", 0, "Expected number of speakers (0 lets diarization decide)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Language hint such as en, de or English (empty detects)")
	cmd.Flags().BoolVar(&f.noEmotion, "no-emotion", false, "Skip speech emotion tagging")
	cmd.Flags().BoolVar(&f.noContext, "no-context", false, "Skip the historical context phase")
}

func (f analysisFlags) options() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.NumSpeakers = f.speakers
	opts.Language = f.language
	opts.EnableEmotion = !f.noEmotion
	opts.EnableContext = !f.noContext
	return opts
}
