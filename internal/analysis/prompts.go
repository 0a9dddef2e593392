package analysis

import (
	"fmt"
	"sort"
	"strings"

	"minutes/internal/fusion"
)

const actionsSystemPrompt = `You analyse meeting transcripts and extract what the participants agreed to do.

Identify:
- action items: concrete tasks given to a person, with a deadline when one was stated
- decisions: conclusions the group reached
- follow-ups: topics that need further discussion or clarification
- commitments: promises a participant made

Speaker labels are anonymous (SPEAKER_00, SPEAKER_01, ...). Use the label as the person name unless the transcript names the person. Use "UNKNOWN" when an owner cannot be determined and "COLLECTIVE" for group decisions.

Respond with JSON only, using this schema:
{"action_items":[{"assignee":<string>,"task":<string>,"deadline":<string or null>,"priority":"high"|"medium"|"low","context":<string>}],
 "decisions":[{"decision":<string>,"decision_maker":<string>,"rationale":<string>,"impact":<string>}],
 "follow_ups":[{"topic":<string>,"reason":<string>,"suggested_action":<string>}],
 "commitments":[{"person":<string>,"commitment":<string>,"timeline":<string>}]}
Use empty lists for categories with no entries.`

const sentimentSystemPrompt = `You analyse the emotional dynamics of a meeting from its transcript and per-utterance emotion tags.

Describe the overall mood and tone, the sentiment and engagement of each speaker, notable emotional shifts and signs of tension or conflict. Emotion tags come from an audio classifier and may be "unknown" when no tag was produced.

Respond with JSON only, using this schema:
{"overall_sentiment":{"mood":"positive"|"neutral"|"negative"|"mixed","tone":"collaborative"|"tense"|"productive"|"casual","description":<string>},
 "speaker_sentiments":[{"speaker":<string>,"dominant_emotion":<string>,"sentiment":"positive"|"neutral"|"negative","engagement_level":"high"|"medium"|"low","key_moments":[<string>],"communication_style":<string>}],
 "emotional_shifts":[{"timestamp":<string>,"from_emotion":<string>,"to_emotion":<string>,"trigger":<string>,"impact":<string>}],
 "meeting_dynamics":{"collaboration_score":<number 0..10>,"tension_level":<number 0..10>,"productivity_indicators":[<string>],"red_flags":[<string>]}}`

const contextSystemPrompt = `You compare a meeting with summaries of earlier meetings from the same organisation.

Find topics and action items that continue earlier discussions, report the status of earlier action items, name recurring themes and point out earlier items that should have been followed up but were not.

Respond with JSON only, using this schema:
{"contextual_references":[{"topic":<string>,"current_mention":<string>,"previous_context":<string>,"continuity_status":"follow-up"|"new"|"recurring"|"resolved"}],
 "action_item_followups":[{"previous_action":<string>,"current_status":"mentioned"|"completed"|"pending"|"not_mentioned","details":<string>}],
 "recurring_themes":[{"theme":<string>,"frequency":<string>,"evolution":<string>}],
 "missing_followups":[{"item":<string>,"last_mentioned":<string>,"recommendation":<string>}],
 "organizational_insights":{"patterns":[<string>],"concerns":[<string>],"progress_indicators":[<string>]}}`

const (
	querySummaryUtterances = 10
	topEmotionsPerSpeaker  = 3
	unknownEmotion         = "unknown"

	noPreviousContext    = "No previous meeting context available."
	previousContextError = "Error retrieving previous context."
)

func buildActionsPrompt(utterances []fusion.Utterance, transcript string) string {
	var b strings.Builder
	b.WriteString("Meeting transcript:\n")
	if len(utterances) == 0 && strings.TrimSpace(transcript) != "" {
		b.WriteString(strings.TrimSpace(transcript))
	} else {
		b.WriteString(formatTimedTranscript(utterances))
	}
	b.WriteString("\n\nSpeaker information:\n")
	b.WriteString(formatSpeakerInfo(utterances))
	return b.String()
}

func buildSentimentPrompt(utterances []fusion.Utterance) string {
	var b strings.Builder
	b.WriteString("Meeting transcript with emotions:\n")
	b.WriteString(formatEmotionTranscript(utterances))
	b.WriteString("\n\nEmotion distribution by speaker:\n")
	b.WriteString(formatEmotionSummary(utterances))
	return b.String()
}

func buildContextPrompt(currentMeeting, previousContext string) string {
	var b strings.Builder
	b.WriteString("Current meeting summary:\n")
	b.WriteString(currentMeeting)
	b.WriteString("\n\nRelevant context from previous meetings:\n")
	b.WriteString(previousContext)
	return b.String()
}

func formatTimedTranscript(utterances []fusion.Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, fmt.Sprintf("[%.1fs] %s: %s", u.Start, u.Speaker, u.Text))
	}
	return strings.Join(lines, "\n")
}

type speakerStats struct {
	segments int
	seconds  float64
}

// formatSpeakerInfo lists speakers in order of first appearance.
func formatSpeakerInfo(utterances []fusion.Utterance) string {
	order := make([]string, 0)
	stats := make(map[string]*speakerStats)
	for _, u := range utterances {
		s, ok := stats[u.Speaker]
		if !ok {
			s = &speakerStats{}
			stats[u.Speaker] = s
			order = append(order, u.Speaker)
		}
		s.segments++
		s.seconds += u.End - u.Start
	}
	lines := make([]string, 0, len(order))
	for _, speaker := range order {
		s := stats[speaker]
		lines = append(lines, fmt.Sprintf("- %s: %d segments, %.1fs total speaking time", speaker, s.segments, s.seconds))
	}
	return strings.Join(lines, "\n")
}

func formatEmotionTranscript(utterances []fusion.Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		emotion := u.Emotion
		if emotion == "" {
			emotion = unknownEmotion
		}
		confidence := 0.0
		if u.EmotionConfidence != nil {
			confidence = *u.EmotionConfidence
		}
		lines = append(lines, fmt.Sprintf("[%.1fs] %s (%s, %.2f): %s", u.Start, u.Speaker, emotion, confidence, u.Text))
	}
	return strings.Join(lines, "\n")
}

type emotionShare struct {
	label   string
	seconds float64
}

// formatEmotionSummary reports each speaker's top emotions by share of
// speaking time.
func formatEmotionSummary(utterances []fusion.Utterance) string {
	order := make([]string, 0)
	perSpeaker := make(map[string][]emotionShare)
	for _, u := range utterances {
		emotion := u.Emotion
		if emotion == "" {
			emotion = unknownEmotion
		}
		shares, ok := perSpeaker[u.Speaker]
		if !ok {
			order = append(order, u.Speaker)
		}
		found := false
		for i := range shares {
			if shares[i].label == emotion {
				shares[i].seconds += u.End - u.Start
				found = true
				break
			}
		}
		if !found {
			shares = append(shares, emotionShare{label: emotion, seconds: u.End - u.Start})
		}
		perSpeaker[u.Speaker] = shares
	}

	lines := make([]string, 0, len(order))
	for _, speaker := range order {
		shares := perSpeaker[speaker]
		total := 0.0
		for _, s := range shares {
			total += s.seconds
		}
		sort.SliceStable(shares, func(i, j int) bool { return shares[i].seconds > shares[j].seconds })
		if len(shares) > topEmotionsPerSpeaker {
			shares = shares[:topEmotionsPerSpeaker]
		}
		parts := make([]string, 0, len(shares))
		for _, s := range shares {
			pct := 0.0
			if total > 0 {
				pct = s.seconds / total * 100
			}
			parts = append(parts, fmt.Sprintf("%s: %.1f%%", s.label, pct))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, strings.Join(parts, ", ")))
	}
	return strings.Join(lines, "\n")
}
