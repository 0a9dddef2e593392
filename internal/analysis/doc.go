// Package analysis runs the LLM analysis phases over a fused meeting.
//
// Three phases exist: actions (action items, decisions, follow-ups,
// commitments), sentiment (mood, per-speaker sentiment, dynamics) and the
// optional context phase that compares the meeting against previously stored
// meetings. Phases are nodes of a small dependency graph: context consumes
// the action items, sentiment depends on nothing. The graph runs in a fixed
// order unless parallel execution is enabled.
//
// A phase failure never aborts the others. It is recorded as an Outcome
// carrying the error message and, when the model answered with something
// unparseable, the raw response.
//
// The context phase retrieves similar past meetings from a HistoryStore
// before calling the model and always stores the current meeting afterwards,
// even when the model call failed.
package analysis
