// Package fusion merges the two independent views of a meeting recording:
// timed transcription spans and speaker diarization intervals.
//
// Fuse assigns every span the speaker whose interval overlaps it the most.
// Ties keep the interval that appears first in the diarization output and a
// span with no overlapping interval is labelled UnknownSpeaker. Output order
// always follows span order, so callers can zip results back to the
// transcription.
//
// AnnotateEmotion runs a Tagger over each fused utterance. Tagging is best
// effort: a failure for one utterance is logged and leaves that utterance
// untagged.
package fusion
