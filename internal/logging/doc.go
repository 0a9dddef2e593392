// Package logging assembles structured slog loggers and formatting helpers used
// across minutes services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline and analysis code
// tag log lines with task IDs, stages, phases, and correlation IDs. The
// package also provides a no-op logger for tests and a tee helper used to
// mirror a single run into its own log file.
package logging
