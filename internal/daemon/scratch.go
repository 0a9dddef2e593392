package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/logging"
)

// scratchMaxAge bounds how long a per-run scratch directory may live. Runs
// remove their own directories, so anything older was left by a crash.
const scratchMaxAge = 24 * time.Hour

// ScratchCleanup is the outcome of a stale scratch directory sweep.
type ScratchCleanup struct {
	Removed []string
	Errors  []ScratchError
}

// ScratchError pairs a directory path with its cleanup error.
type ScratchError struct {
	Path  string
	Error error
}

// CleanStaleScratch removes directories under workDir last modified before
// now minus maxAge.
func CleanStaleScratch(workDir string, maxAge time.Duration, now time.Time, logger *slog.Logger) ScratchCleanup {
	var result ScratchCleanup
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return result
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, ScratchError{Path: workDir, Error: err})
		}
		return result
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, ScratchError{Path: dir, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, ScratchError{Path: dir, Error: err})
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove stale scratch directory", "scratch_cleanup_failed",
					logging.String("path", dir),
					logging.String(logging.FieldErrorHint, "check data_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
					logging.Error(err),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dir)
		if logger != nil {
			logger.Info("removed stale scratch directory",
				logging.String(logging.FieldEventType, "scratch_cleanup"),
				logging.String("path", dir),
				logging.Duration("age", now.Sub(info.ModTime())),
			)
		}
	}
	return result
}
