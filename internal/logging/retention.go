package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays and returns how many were removed. A retentionDays value
// of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	excluded := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil && strings.TrimSpace(path) != "" {
				excluded[abs] = struct{}{}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		pattern := strings.TrimSpace(target.Pattern)
		if pattern == "" {
			pattern = "*.log"
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if _, skip := excluded[path]; skip {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}
