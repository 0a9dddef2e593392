// Package main hosts the minutes CLI entrypoint and command graph.
//
// The Cobra command tree either runs the meeting pipeline in-process
// (analyze) or talks to a running minutesd over its control API (submit,
// status, tasks, result, cleanup). It also reads the local meeting history
// and log files, reports dependency and service readiness, and scaffolds
// configuration.
//
// Keep this package lean: behavior belongs in the internal packages and is
// surfaced here through commands and flags.
package main
