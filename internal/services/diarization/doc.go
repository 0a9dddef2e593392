// Package diarization is the HTTP client for the speaker diarization
// service. The service receives the preprocessed WAV as a multipart upload
// and answers with speaker turns, which map directly onto fusion intervals.
package diarization
