// Package emotion classifies the emotion of individual utterances.
//
// Tagger cuts each utterance out of the preprocessed recording with ffmpeg,
// uploads the clip to the emotion service and returns its label and
// confidence. Clips live in a private scratch directory that Close removes.
package emotion
