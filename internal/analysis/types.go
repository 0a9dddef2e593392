package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Phase names used in logs, metrics and outcome markers.
const (
	PhaseActions   = "actions"
	PhaseSentiment = "sentiment"
	PhaseContext   = "context"
)

// ActionItem is a task someone agreed to do.
type ActionItem struct {
	Assignee string `json:"assignee"`
	Task     string `json:"task"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Decision is something the meeting settled.
type Decision struct {
	Decision      string `json:"decision"`
	DecisionMaker string `json:"decision_maker,omitempty"`
	Rationale     string `json:"rationale,omitempty"`
	Impact        string `json:"impact,omitempty"`
}

// FollowUp is a topic that needs another conversation.
type FollowUp struct {
	Topic           string `json:"topic"`
	Reason          string `json:"reason,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Commitment is a promise made by one speaker.
type Commitment struct {
	Person     string `json:"person"`
	Commitment string `json:"commitment"`
	Timeline   string `json:"timeline,omitempty"`
}

// Actions is the payload of the actions phase.
type Actions struct {
	ActionItems []ActionItem `json:"action_items"`
	Decisions   []Decision   `json:"decisions"`
	FollowUps   []FollowUp   `json:"follow_ups"`
	Commitments []Commitment `json:"commitments"`
}

func (a *Actions) normalize() {
	if a.ActionItems == nil {
		a.ActionItems = []ActionItem{}
	}
	if a.Decisions == nil {
		a.Decisions = []Decision{}
	}
	if a.FollowUps == nil {
		a.FollowUps = []FollowUp{}
	}
	if a.Commitments == nil {
		a.Commitments = []Commitment{}
	}
	for i := range a.ActionItems {
		if strings.TrimSpace(a.ActionItems[i].Assignee) == "" {
			a.ActionItems[i].Assignee = "UNKNOWN"
		}
	}
}

// OverallSentiment is the mood and tone of the whole meeting.
type OverallSentiment struct {
	Mood        string `json:"mood,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Description string `json:"description,omitempty"`
}

func (o *OverallSentiment) empty() bool {
	return o == nil || (o.Mood == "" && o.Tone == "" && o.Description == "")
}

// SpeakerSentiment describes how one speaker came across.
type SpeakerSentiment struct {
	Speaker            string   `json:"speaker"`
	DominantEmotion    string   `json:"dominant_emotion,omitempty"`
	Sentiment          string   `json:"sentiment,omitempty"`
	EngagementLevel    string   `json:"engagement_level,omitempty"`
	KeyMoments         []string `json:"key_moments,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
}

// EmotionalShift is a point where the mood changed.
type EmotionalShift struct {
	Timestamp   string `json:"timestamp"`
	FromEmotion string `json:"from_emotion"`
	ToEmotion   string `json:"to_emotion"`
	Trigger     string `json:"trigger,omitempty"`
	Impact      string `json:"impact,omitempty"`
}

// Score is a 0-10 rating. Models answer with either a number or a numeric
// string, both decode.
type Score float64

// UnmarshalJSON accepts a number, a numeric string or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*s = 0
			return nil
		}
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", text, err)
		}
		*s = Score(value)
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*s = Score(value)
	return nil
}

// MeetingDynamics scores how the group worked together.
type MeetingDynamics struct {
	CollaborationScore     Score    `json:"collaboration_score"`
	TensionLevel           Score    `json:"tension_level"`
	ProductivityIndicators []string `json:"productivity_indicators"`
	RedFlags               []string `json:"red_flags"`
}

// Sentiment is the payload of the sentiment phase.
type Sentiment struct {
	OverallSentiment  *OverallSentiment  `json:"overall_sentiment"`
	SpeakerSentiments []SpeakerSentiment `json:"speaker_sentiments"`
	EmotionalShifts   []EmotionalShift   `json:"emotional_shifts"`
	MeetingDynamics   *MeetingDynamics   `json:"meeting_dynamics"`
}

func (s *Sentiment) normalize() {
	if s.SpeakerSentiments == nil {
		s.SpeakerSentiments = []SpeakerSentiment{}
	}
	if s.EmotionalShifts == nil {
		s.EmotionalShifts = []EmotionalShift{}
	}
}

// ContextualReference links the meeting to an earlier one.
type ContextualReference struct {
	Topic            string `json:"topic"`
	CurrentMention   string `json:"current_mention,omitempty"`
	PreviousContext  string `json:"previous_context,omitempty"`
	ContinuityStatus string `json:"continuity_status,omitempty"`
}

// ActionItemFollowup tracks an action item from a previous meeting.
type ActionItemFollowup struct {
	PreviousAction string `json:"previous_action"`
	CurrentStatus  string `json:"current_status,omitempty"`
	Details        string `json:"details,omitempty"`
}

// RecurringTheme is a topic that keeps coming back.
type RecurringTheme struct {
	Theme     string `json:"theme"`
	Frequency string `json:"frequency,omitempty"`
	Evolution string `json:"evolution,omitempty"`
}

// MissingFollowup is earlier work nobody mentioned this time.
type MissingFollowup struct {
	Item           string `json:"item"`
	LastMentioned  string `json:"last_mentioned,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// OrganizationalInsights holds team-level patterns across meetings.
type OrganizationalInsights struct {
	Patterns           []string `json:"patterns"`
	Concerns           []string `json:"concerns"`
	ProgressIndicators []string `json:"progress_indicators"`
}

// ContextAnalysis is the payload of the context phase.
type ContextAnalysis struct {
	ContextualReferences   []ContextualReference   `json:"contextual_references"`
	ActionItemFollowups    []ActionItemFollowup    `json:"action_item_followups"`
	RecurringThemes        []RecurringTheme        `json:"recurring_themes"`
	MissingFollowups       []MissingFollowup       `json:"missing_followups"`
	OrganizationalInsights *OrganizationalInsights `json:"organizational_insights"`
}

func (c *ContextAnalysis) normalize() {
	if c.ContextualReferences == nil {
		c.ContextualReferences = []ContextualReference{}
	}
	if c.ActionItemFollowups == nil {
		c.ActionItemFollowups = []ActionItemFollowup{}
	}
	if c.RecurringThemes == nil {
		c.RecurringThemes = []RecurringTheme{}
	}
	if c.MissingFollowups == nil {
		c.MissingFollowups = []MissingFollowup{}
	}
}

// Outcome is the result of one phase: either a payload or an error marker.
// It serializes as the bare payload, or as {"error": ..., "raw_response": ...}.
type Outcome[T any] struct {
	Value       *T
	Error       string
	RawResponse string
}

// Succeeded reports whether the phase produced a payload.
func (o *Outcome[T]) Succeeded() bool {
	return o != nil && o.Error == "" && o.Value != nil
}

type outcomeError struct {
	Error       string `json:"error"`
	RawResponse string `json:"raw_response,omitempty"`
}

// MarshalJSON writes the payload, or an error marker when the phase failed.
func (o Outcome[T]) MarshalJSON() ([]byte, error) {
	if o.Error != "" || o.Value == nil {
		message := o.Error
		if message == "" {
			message = "no result"
		}
		return json.Marshal(outcomeError{Error: message, RawResponse: o.RawResponse})
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON reads either form written by MarshalJSON.
func (o *Outcome[T]) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["error"]; ok {
		var marker outcomeError
		if err := json.Unmarshal(data, &marker); err == nil && marker.Error != "" {
			*o = Outcome[T]{Error: marker.Error, RawResponse: marker.RawResponse}
			return nil
		}
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*o = Outcome[T]{Value: &value}
	return nil
}

// Results collects everything one Analyze call produced.
type Results struct {
	MeetingID string                    `json:"meeting_id"`
	Timestamp string                    `json:"timestamp"`
	Speakers  []string                  `json:"speakers"`
	Actions   *Outcome[Actions]         `json:"actions"`
	Sentiment *Outcome[Sentiment]       `json:"sentiment"`
	Context   *Outcome[ContextAnalysis] `json:"context"`
	Summary   ExecutiveSummary          `json:"executive_summary"`
}

// ExecutiveSummary is the short digest derived from the phase results.
type ExecutiveSummary struct {
	MeetingID     string       `json:"meeting_id"`
	Timestamp     string       `json:"timestamp"`
	Participants  []string     `json:"participants"`
	KeyHighlights []string     `json:"key_highlights"`
	TopActions    []ActionItem `json:"top_actions,omitempty"`
	TopDecisions  []Decision   `json:"top_decisions,omitempty"`
	OverallMood   string       `json:"overall_mood,omitempty"`
	OverallTone   string       `json:"overall_tone,omitempty"`
}

// TranscriptAnalysis is the result of the transcript-only quick path.
type TranscriptAnalysis struct {
	Transcript string            `json:"transcript"`
	Analysis   *Outcome[Actions] `json:"analysis"`
}
