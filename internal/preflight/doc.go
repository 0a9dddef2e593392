// Package preflight provides readiness checks for the directories and
// services minutes depends on.
//
// The checks back the "minutes check" command and are logged once when the
// daemon starts. A failed check never stops the daemon; the affected stage
// fails per task with its own error instead.
//
// Optional features are skipped when disabled: the emotion service is only
// probed when emotion tagging is on, and the LLM is probed whenever an API
// key is configured.
package preflight
