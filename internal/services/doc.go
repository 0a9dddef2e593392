// Package services defines shared utilities consumed by the pipeline, the
// analysis phases and the external model integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage and phase names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep the failure
//     taxonomy (validation, stage, phase, persistence, not found) uniform.
//
// Subpackages hold the clients for WhisperX, the diarization and emotion
// services, and the LLM endpoint.
package services
