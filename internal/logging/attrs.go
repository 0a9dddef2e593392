package logging

import (
	"log/slog"
	"time"
)

// Attr is the attribute type accepted by the helpers in this package.
type Attr = slog.Attr

// Any records an arbitrary value.
func Any(key string, value any) Attr { return slog.Any(key, value) }

// Bool records a boolean.
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

// Duration records an elapsed time.
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Float64 records a float, e.g. seconds or a realtime factor.
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

// Int records an integer.
func Int(key string, value int) Attr { return slog.Int(key, value) }

// String records a string.
func String(key, value string) Attr { return slog.String(key, value) }

// Alert marks a record that operators should notice, e.g. a lost result.
func Alert(value string) Attr { return slog.String(FieldAlert, value) }

// Error records err under the "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs for the variadic slog logging methods.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const defaultErrorHint = "check logs for details"

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Fields the caller leaves out get generic defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, defaultErrorHint),
		String(FieldImpact, "operation completed with warnings"),
	)
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, defaultErrorHint),
	)
	logger.Error(msg, Args(attrs...)...)
}

// withDefaults appends each default whose key is missing from attrs.
func withDefaults(attrs []Attr, defaults ...Attr) []Attr {
	for _, def := range defaults {
		present := false
		for _, a := range attrs {
			if a.Key == def.Key {
				present = true
				break
			}
		}
		if !present {
			attrs = append(attrs, def)
		}
	}
	return attrs
}
