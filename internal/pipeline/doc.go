// Package pipeline turns one meeting recording into a MeetingReport.
//
// A run is a fixed sequence of stages: validate, load (resample), preprocess,
// diarize, transcribe, fuse, emotion, analyze and report. Each stage reports
// a fixed progress value when it finishes. Validation failures are returned
// as services.ErrValidation before any model work starts; every later
// failure is fatal to the run and surfaces as a *StageError naming the
// stage. The pipeline never retries a stage.
//
// A Pipeline owns its leaves (audio processor, transcriber, diarizer,
// emotion tagger and analyzer) for its lifetime. Callers must call Release
// once when the pipeline is no longer needed; it closes every leaf that
// implements io.Closer.
package pipeline
