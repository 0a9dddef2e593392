// Package whisperx runs WhisperX to transcribe meeting recordings.
//
// WhisperX is launched through uvx so no Python environment needs to be
// managed by minutes. The service writes WhisperX's JSON output into a
// caller-supplied work directory and converts the segment list into
// fusion spans together with the detected language.
//
// Configuration options (model, CUDA, VAD method, timeout) are passed via
// Config; NewFromConfig maps the transcription section of the main config.
package whisperx
