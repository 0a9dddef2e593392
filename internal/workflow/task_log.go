package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"minutes/internal/config"
	"minutes/internal/logging"
)

// TaskLogger manages dedicated log files for individual task runs.
type TaskLogger struct {
	baseDir string
	format  string
	level   string
}

// NewTaskLogger creates a task logger writing under <log_dir>/tasks.
func NewTaskLogger(cfg *config.Config) *TaskLogger {
	tl := &TaskLogger{format: "json", level: "info"}
	if cfg == nil {
		return tl
	}
	if cfg.Paths.LogDir != "" {
		tl.baseDir = filepath.Join(cfg.Paths.LogDir, "tasks")
	}
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		tl.level = cfg.Logging.Level
	}
	if strings.TrimSpace(cfg.Logging.Format) != "" {
		tl.format = cfg.Logging.Format
	}
	return tl
}

// Dir is the directory holding task logs.
func (t *TaskLogger) Dir() string {
	return t.baseDir
}

// Path returns the log file path for a task id.
func (t *TaskLogger) Path(id string) string {
	name := sanitizeSlug(id)
	if name == "" {
		name = "task"
	}
	return filepath.Join(t.baseDir, name+".log")
}

// Open returns a handler appending to the task's log file.
func (t *TaskLogger) Open(id string) (slog.Handler, io.Closer, error) {
	if strings.TrimSpace(t.baseDir) == "" {
		return nil, nil, fmt.Errorf("task log directory not configured")
	}
	return logging.NewFileHandler(t.Path(id), t.format, t.level)
}

func sanitizeSlug(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			builder.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(builder.String(), "-")
}
