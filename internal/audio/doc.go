// Package audio wraps ffmpeg and ffprobe for the meeting pipeline.
//
// Probe reads container metadata. Resample converts any supported input to
// mono PCM WAV at the configured sample rate, Preprocess applies optional
// denoising and loudness normalization, and ExtractRange cuts a sub-range for
// per-utterance classification. None of the filters trim audio, so
// timestamps produced downstream stay aligned with the original recording.
package audio
