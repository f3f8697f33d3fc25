// Package agent implements the plan-execute-reflect research loop: a planner
// decomposes a question into search sub-tasks, an executor gathers and scores
// evidence through pluggable retrieval adapters, a critic decides whether to
// iterate, and a synthesizer writes the cited report.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// State names the phase a run is currently in.
type State string

const (
	StatePlanning     State = "planning"
	StateExecuting    State = "executing"
	StateCritiquing   State = "critiquing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
)

// RunState is the snapshot passed to the progress callback.
type RunState struct {
	State     State `json:"state"`
	Iteration int   `json:"iteration"`
	SubTasks  int   `json:"sub_tasks"`
	Evidence  int   `json:"evidence"`
	Admitted  int   `json:"admitted"`
}

// Config holds engine-level tuning that applies to every run.
type Config struct {
	Weights ScoreWeights
	// MinScore is the combined-score threshold an admitted item must meet to
	// count toward the evidence target.
	MinScore float64
	// Concurrency bounds how many sub-tasks execute at once.
	Concurrency int
}

// Engine wires the capabilities together and drives the loop. It holds no
// per-run state; Run may be called concurrently.
type Engine struct {
	llm           llms.Model
	adapters      []RetrievalAdapter
	embedder      Embedder
	persister     Persister
	logger        *slog.Logger
	config        Config
	onStateUpdate func(RunState)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder supplies the optional embedding capability. Without it the
// scorer uses lexical similarity.
func WithEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithPersister supplies the long-term memory sink invoked once per run at
// completion.
func WithPersister(p Persister) Option {
	return func(eng *Engine) {
		if p != nil {
			eng.persister = p
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		if l != nil {
			eng.logger = l
		}
	}
}

// WithScoreWeights overrides the relevance/quality split.
func WithScoreWeights(w ScoreWeights) Option {
	return func(eng *Engine) { eng.config.Weights = w }
}

// WithMinScore sets the combined-score threshold for the evidence target.
func WithMinScore(v float64) Option {
	return func(eng *Engine) { eng.config.MinScore = v }
}

// WithConcurrency bounds parallel sub-task execution.
func WithConcurrency(n int) Option {
	return func(eng *Engine) {
		if n > 0 {
			eng.config.Concurrency = n
		}
	}
}

// WithStateCallback registers a progress hook receiving a snapshot at every
// phase transition.
func WithStateCallback(f func(RunState)) Option {
	return func(eng *Engine) { eng.onStateUpdate = f }
}

// New builds an engine around a completion model and a set of retrieval
// adapters.
func New(model llms.Model, adapters []RetrievalAdapter, opts ...Option) *Engine {
	e := &Engine{
		llm:       model,
		adapters:  adapters,
		persister: NoopPersister{},
		logger:    slog.Default(),
		config: Config{
			Weights:     DefaultScoreWeights,
			MinScore:    0.4,
			Concurrency: 3,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the mutable state of a single research run. The engine is the
// only owner of these counters and of the evidence store.
type run struct {
	e            *Engine
	req          Request
	budget       Budget
	floor        ConstraintSet
	store        *EvidenceStore
	scorer       Scorer
	iteration    int
	subTasksDone int
	rationale    string
	start        time.Time
}

// Run executes one research run to completion, cancellation, or failure.
//
// Phases are strictly ordered: planning, then alternating executing and
// critiquing until the critic or a hard budget stop ends the loop, then
// synthesizing. Cancellation between phases yields a partial report when any
// evidence was committed and ErrCancelled otherwise.
func (e *Engine) Run(ctx context.Context, req Request) (*ResearchReport, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("research question is empty")
	}
	if req.Mode == "" {
		req.Mode = ModeBriefing
	}
	if req.Mode != ModeBriefing && req.Mode != ModeEssay {
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
	if err := req.Constraints.Validate(); err != nil {
		return nil, err
	}
	req.Budget = req.Budget.withDefaults()

	r := &run{
		e:      e,
		req:    req,
		budget: req.Budget,
		floor:  req.Constraints,
		store:  NewEvidenceStore(),
		scorer: Scorer{Weights: e.config.Weights, CurrentYear: time.Now().Year()},
		start:  time.Now(),
	}

	e.logger.Info("starting research run",
		"question", req.Question, "mode", req.Mode,
		"max_iterations", req.Budget.MaxIterations, "adapters", len(e.adapters))

	r.setState(StatePlanning)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	r.iteration = 1
	tasks, err := r.plan(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, err
	}

	for {
		r.setState(StateExecuting)
		if ctx.Err() != nil {
			return r.finishPartial(ctx)
		}
		r.execute(ctx, tasks)
		if ctx.Err() != nil {
			return r.finishPartial(ctx)
		}

		r.setState(StateCritiquing)
		critique := r.critique(ctx)
		e.logger.Info("critique",
			"verdict", critique.Verdict, "rationale", critique.Rationale,
			"follow_ups", len(critique.SubTasks), "iteration", r.iteration)
		r.rationale = critique.Rationale
		if critique.Verdict == VerdictStop {
			break
		}
		if ctx.Err() != nil {
			return r.finishPartial(ctx)
		}

		r.iteration++
		tasks = critique.SubTasks
		if len(tasks) == 0 {
			tasks, err = r.plan(ctx, &critique)
			if err != nil {
				e.logger.Warn("follow-up planning failed, synthesizing with current evidence", "error", err)
				break
			}
		}
	}

	if ctx.Err() != nil {
		return r.finishPartial(ctx)
	}
	r.setState(StateSynthesizing)
	report, err := r.synthesize(ctx, StatusCompleted)
	if err != nil {
		return nil, err
	}
	r.finish(ctx, report)
	return report, nil
}

// finishPartial handles cancellation observed between phases. Evidence
// already committed is kept and turned into a best-effort partial report.
func (r *run) finishPartial(ctx context.Context) (*ResearchReport, error) {
	if r.store.Len() == 0 {
		return nil, ErrCancelled
	}
	r.e.logger.Warn("run cancelled, producing partial report", "evidence", r.store.Len())
	if r.rationale == "" {
		r.rationale = "run cancelled before completion"
	}
	detached := context.WithoutCancel(ctx)
	r.setState(StateSynthesizing)
	report, err := r.synthesize(detached, StatusPartial)
	if err != nil {
		return nil, err
	}
	r.finish(detached, report)
	return report, nil
}

// finish persists the report and evidence trail and marks the run done.
// Persistence failures are logged, not surfaced.
func (r *run) finish(ctx context.Context, report *ResearchReport) {
	persistCtx, cancel := context.WithTimeout(ctx, r.budget.PerCallTimeout)
	defer cancel()
	if err := r.e.persister.Persist(persistCtx, report, r.store.Items()); err != nil {
		r.e.logger.Error("failed to persist run", "error", err)
	}
	r.setState(StateDone)
	r.e.logger.Info("research run finished",
		"status", report.Metadata.Status,
		"iterations", report.Metadata.Iterations,
		"evidence", report.Metadata.EvidenceTotal,
		"admitted", report.Metadata.EvidenceAdmitted,
		"elapsed", report.Metadata.Elapsed)
}

func (r *run) setState(s State) {
	if r.e.onStateUpdate == nil {
		return
	}
	r.e.onStateUpdate(RunState{
		State:     s,
		Iteration: r.iteration,
		SubTasks:  r.subTasksDone,
		Evidence:  r.store.Len(),
		Admitted:  len(r.store.Admitted()),
	})
}
