package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"minutes/internal/config"
	"minutes/internal/fusion"
	"minutes/internal/history"
	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/services/llm"
)

const defaultTopK = 5

// Completer is the LLM surface the phases need.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PhaseObserver is notified after each phase finishes.
type PhaseObserver func(phase string, succeeded bool, elapsed time.Duration)

// Orchestrator runs the analysis phases for one meeting at a time. It holds
// no per-meeting state and is safe for concurrent use.
type Orchestrator struct {
	llm      Completer
	history  HistoryStore
	logger   *slog.Logger
	topK     int
	parallel bool
	observer PhaseObserver
	now      func() time.Time
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithHistory enables the context phase against store.
func WithHistory(store HistoryStore) Option {
	return func(o *Orchestrator) { o.history = store }
}

// WithTopK sets how many previous meetings the context phase retrieves.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithParallelPhases runs independent phases concurrently.
func WithParallelPhases(enabled bool) Option {
	return func(o *Orchestrator) { o.parallel = enabled }
}

// WithPhaseObserver reports every finished phase to observer.
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithClock overrides the time source for meeting ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an orchestrator around the supplied completer.
func New(completer Completer, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:    completer,
		logger: logging.NewComponentLogger(logger, "analysis"),
		topK:   defaultTopK,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromConfig builds an orchestrator with settings from the analysis section.
// store may be nil, which disables the context phase.
func NewFromConfig(cfg *config.Config, completer Completer, store HistoryStore, logger *slog.Logger, opts ...Option) *Orchestrator {
	base := []Option{
		WithTopK(cfg.Analysis.ContextTopK),
		WithParallelPhases(cfg.Analysis.ParallelPhases),
	}
	if store != nil {
		base = append(base, WithHistory(store))
	}
	return New(completer, logger, append(base, opts...)...)
}

// Input is one fused meeting ready for analysis.
type Input struct {
	MeetingID     string
	Utterances    []fusion.Utterance
	EnableContext bool
}

type phaseNode struct {
	name string
	deps []string
	run  func(ctx context.Context)
}

// Analyze runs every enabled phase and derives the executive summary. Phase
// failures are recorded in the results. The only error returned is the
// context's, when the run was cancelled.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) (*Results, error) {
	timestamp := o.now().UTC().Format(time.RFC3339)
	meetingID := strings.TrimSpace(in.MeetingID)
	if meetingID == "" {
		meetingID = o.now().UTC().Format("20060102_150405")
	}
	res := &Results{
		MeetingID: meetingID,
		Timestamp: timestamp,
		Speakers:  fusion.Participants(in.Utterances),
	}

	nodes := []phaseNode{
		{name: PhaseActions, run: func(ctx context.Context) {
			res.Actions = runPhase(ctx, o, PhaseActions, actionsSystemPrompt,
				buildActionsPrompt(in.Utterances, ""), (*Actions).normalize)
		}},
		{name: PhaseSentiment, run: func(ctx context.Context) {
			res.Sentiment = runPhase(ctx, o, PhaseSentiment, sentimentSystemPrompt,
				buildSentimentPrompt(in.Utterances), (*Sentiment).normalize)
		}},
	}
	if in.EnableContext && o.history != nil {
		nodes = append(nodes, phaseNode{name: PhaseContext, deps: []string{PhaseActions}, run: func(ctx context.Context) {
			o.runContext(ctx, in, res)
		}})
	}

	o.runGraph(ctx, nodes)
	res.Summary = Summarize(res)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// AnalyzeTranscript runs only the actions phase. utterances may be empty, in
// which case the plain transcript text is analysed.
func (o *Orchestrator) AnalyzeTranscript(ctx context.Context, transcript string, utterances []fusion.Utterance) *TranscriptAnalysis {
	outcome := runPhase(ctx, o, PhaseActions, actionsSystemPrompt,
		buildActionsPrompt(utterances, transcript), (*Actions).normalize)
	return &TranscriptAnalysis{Transcript: transcript, Analysis: outcome}
}

// runGraph executes nodes in slice order, or concurrently with each node
// waiting for its dependencies when parallel phases are enabled. nodes must
// be listed in dependency order.
func (o *Orchestrator) runGraph(ctx context.Context, nodes []phaseNode) {
	if !o.parallel {
		for _, node := range nodes {
			node.run(ctx)
		}
		return
	}

	done := make(map[string]chan struct{}, len(nodes))
	for _, node := range nodes {
		done[node.name] = make(chan struct{})
	}
	var g errgroup.Group
	for _, node := range nodes {
		g.Go(func() error {
			defer close(done[node.name])
			for _, dep := range node.deps {
				if ch, ok := done[dep]; ok {
					<-ch
				}
			}
			node.run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) runContext(ctx context.Context, in Input, res *Results) {
	var actions *Actions
	if res.Actions.Succeeded() {
		actions = res.Actions.Value
	}
	logger := logging.WithContext(services.WithPhase(ctx, PhaseContext), o.logger)

	current := querySummary(in.Utterances, actions)
	previous := noPreviousContext
	docs, err := o.history.Query(ctx, current, o.topK)
	if err != nil {
		previous = previousContextError
		logging.WarnWithContext(logger, "previous meeting retrieval failed",
			"history_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database"),
			logging.String(logging.FieldImpact, "context analysis runs without previous meetings"),
		)
	} else {
		previous = formatPreviousContext(docs)
		logger.Debug("previous meetings retrieved", logging.Int("count", len(docs)))
	}

	res.Context = runPhase(ctx, o, PhaseContext, contextSystemPrompt,
		buildContextPrompt(current, previous), (*ContextAnalysis).normalize)

	text := storageText(res.MeetingID, res.Timestamp, res.Speakers, in.Utterances, actions)
	meta := history.Metadata{MeetingID: res.MeetingID, Timestamp: res.Timestamp, Participants: res.Speakers}
	if err := o.history.Add(ctx, text, meta); err != nil {
		logging.ErrorWithContext(logger, "meeting history store failed",
			"history_store_failed",
			logging.Error(services.Wrap(services.ErrPersistence, "", PhaseContext, "store meeting", err)),
			logging.String(logging.FieldErrorHint, "check the history database path and permissions"),
		)
		return
	}
	logger.Info("meeting stored for future context", logging.String("meeting_id", res.MeetingID))
}

func runPhase[T any](ctx context.Context, o *Orchestrator, phase, systemPrompt, userPrompt string, normalize func(*T)) *Outcome[T] {
	ctx = services.WithPhase(ctx, phase)
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()
	outcome := completePhase(ctx, o.llm, phase, systemPrompt, userPrompt, normalize)
	elapsed := time.Since(started)

	if o.observer != nil {
		o.observer(phase, outcome.Succeeded(), elapsed)
	}
	if outcome.Error != "" {
		logging.WarnWithContext(logger, "analysis phase failed",
			"analysis_phase_failed",
			logging.String("reason", outcome.Error),
			logging.Bool("raw_response_kept", outcome.RawResponse != ""),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "check llm settings and the raw response in the report"),
			logging.String(logging.FieldImpact, "report carries an error marker for this phase"),
		)
		return outcome
	}
	logger.Info("analysis phase completed", logging.Duration("elapsed", elapsed))
	return outcome
}

func completePhase[T any](ctx context.Context, completer Completer, phase, systemPrompt, userPrompt string, normalize func(*T)) *Outcome[T] {
	if completer == nil {
		return &Outcome[T]{Error: services.Wrap(services.ErrConfiguration, "", phase, "llm client not configured", nil).Error()}
	}
	raw, err := completer.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return &Outcome[T]{Error: services.Wrap(services.ErrPhaseFailure, "", phase, "llm request", err).Error()}
	}
	var value T
	if err := llm.DecodeLLMJSON(raw, &value); err != nil {
		return &Outcome[T]{
			Error:       services.Wrap(services.ErrPhaseFailure, "", phase, "parse response", err).Error(),
			RawResponse: raw,
		}
	}
	if normalize != nil {
		normalize(&value)
	}
	return &Outcome[T]{Value: &value}
}
