package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"minutes/internal/logging"
)

// Emotion is a single classifier verdict for an audio range.
type Emotion struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Tagger classifies the emotion expressed in a time range of an audio file.
type Tagger interface {
	Classify(ctx context.Context, audioPath string, start, end float64) (Emotion, error)
}

// NormalizeConfidence maps a classifier score into [0,1]. Scores above 1
// are clamped; NaN and negative scores are rejected.
func NormalizeConfidence(value float64) (float64, bool) {
	if math.IsNaN(value) || value < 0 {
		return 0, false
	}
	return math.Min(value, 1), true
}

// AnnotateEmotion returns a copy of utterances with emotion fields set from
// the tagger. Per-utterance failures are logged and skipped. Only context
// cancellation stops the pass early.
func AnnotateEmotion(ctx context.Context, audioPath string, utterances []Utterance, tagger Tagger, logger *slog.Logger) ([]Utterance, error) {
	out := make([]Utterance, len(utterances))
	copy(out, utterances)
	if tagger == nil {
		return out, nil
	}
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "emotion"))

	failed := 0
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emotion, err := tagger.Classify(ctx, audioPath, out[i].Start, out[i].End)
		confidence, valid := NormalizeConfidence(emotion.Confidence)
		if err == nil && !valid {
			err = fmt.Errorf("confidence %v out of range", emotion.Confidence)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failed++
			logging.WarnWithContext(logger, "emotion classification failed",
				"emotion_classify_failed",
				logging.Int("utterance", i),
				logging.Float64("start", out[i].Start),
				logging.Float64("end", out[i].End),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the emotion service logs"),
				logging.String(logging.FieldImpact, "utterance left without an emotion tag"),
			)
			continue
		}
		out[i].Emotion = emotion.Label
		out[i].EmotionConfidence = &confidence
	}
	if failed > 0 {
		logger.Info("emotion pass finished with gaps",
			logging.Int("tagged", len(out)-failed),
			logging.Int("failed", failed),
		)
	}
	return out, nil
}
