package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"minutes/internal/config"
	"minutes/internal/deps"
	"minutes/internal/services/diarization"
	"minutes/internal/services/emotion"
	"minutes/internal/services/llm"
)

// MinFreeBytes is the free space a run needs for its resampled and
// preprocessed WAV copies of an hour-long recording.
const MinFreeBytes uint64 = 2 << 30

const serviceTimeout = 5 * time.Second

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable (" + client.Model() + ")"}
}

// CheckDiarization probes the diarization service health endpoint.
func CheckDiarization(ctx context.Context, cfg *config.Config) Result {
	const name = "Diarization service"
	if cfg.Diarization.URL == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()
	if err := diarization.NewFromConfig(cfg, nil).HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Diarization.URL + " reachable"}
}

// CheckEmotion probes the emotion classification service health endpoint.
func CheckEmotion(ctx context.Context, cfg *config.Config) Result {
	const name = "Emotion service"
	if cfg.Emotion.URL == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()
	tagger := emotion.NewFromConfig(cfg, nil, nil)
	defer tagger.Close()
	if err := tagger.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Emotion.URL + " reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minFree
// bytes available to unprivileged users.
func CheckFreeSpace(name, path string, minFree uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, formatBytes(free))
	if free < minFree {
		return Result{Name: name, Detail: detail + ", need " + formatBytes(minFree)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries for cfg. Both the daemon
// and the check command use it so the requirement list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// summarizeServiceError produces a human-readable summary for health check failures.
func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
