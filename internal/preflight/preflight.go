package preflight

import (
	"context"

	"minutes/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.InboxDir != "" {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}
	results = append(results, CheckFreeSpace("Work space", cfg.Paths.DataDir, MinFreeBytes))
	results = append(results, CheckLLM(ctx, "Analysis LLM", cfg.GetLLM()))
	results = append(results, CheckDiarization(ctx, cfg))
	if cfg.Emotion.Enabled {
		results = append(results, CheckEmotion(ctx, cfg))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
