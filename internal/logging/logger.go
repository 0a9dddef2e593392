package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	writer, err := openWriters(paths)
	if err != nil {
		return nil, err
	}

	handler, err := newHandler(writer, opts.Format, levelVar, opts.Development || level <= slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger writing to stdout and <log_dir>/<name>.log.
func NewFromConfig(cfg *config.Config, name string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		if strings.TrimSpace(name) == "" {
			name = "minutes"
		}
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, name+".log"))
	}

	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}

// NewFileHandler returns a handler that appends to path using the configured
// format. The returned closer releases the file.
func NewFileHandler(path, format, level string) (slog.Handler, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	handler, err := newHandler(file, format, levelVar, false)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return handler, file, nil
}

func newHandler(w io.Writer, format string, level *slog.LevelVar, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newConsoleHandler(w, level, addSource), nil
	case "json":
		return newJSONHandler(w, level, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}

// TeeLogger mirrors everything logged through base into extra handlers. The
// workflow manager uses it to copy a run into its per-task log file.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	var handlers []slog.Handler
	if base != nil {
		handlers = append(handlers, base.Handler())
	}
	for _, h := range extra {
		if h != nil {
			handlers = append(handlers, h)
		}
	}
	switch len(handlers) {
	case 0:
		return NewNop()
	case 1:
		return slog.New(handlers[0])
	}
	return slog.New(slog.NewMultiHandler(handlers...))
}
