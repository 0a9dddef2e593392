// Package daemon coordinates the long-running minutesd process.
//
// It holds a flock-based lock so only one daemon runs per log directory,
// starts the workflow manager and the attached services (control API, inbox
// watcher) in order, and stops them in reverse. A retention loop drops old
// tasks, stored reports, uploads, logs and abandoned scratch directories on
// the configured interval.
//
// Keep orchestration logic here: pipeline behavior lives in its own packages
// while the daemon focuses on startup, shutdown and housekeeping.
package daemon
