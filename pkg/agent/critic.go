package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const criticSystemPrompt = `You are a research critic.
Review the evidence gathered so far and decide whether it is sufficient to answer the research question.
If sufficient, verdict is "stop". If important aspects are uncovered, verdict is "continue" and you must supply 1 to 3 follow-up search queries targeting the gaps.
You may optionally narrow the evidence constraints for the follow-ups; you can never loosen the user's constraints.

Return a JSON object only, no surrounding text:
{"verdict": "continue|stop", "rationale": "...", "follow_up_queries": ["..."], "constraints": {"source_types": [], "time_range": {"start_year": 0, "end_year": 0}}}`

const maxEvidenceInDigest = 20

type critiqueResponse struct {
	Verdict         string         `json:"verdict"`
	Rationale       string         `json:"rationale"`
	FollowUpQueries []string       `json:"follow_up_queries"`
	Constraints     *ConstraintSet `json:"constraints"`
}

// critique inspects the evidence store and decides whether to loop. It fails
// closed: any completion error or unparseable verdict yields stop. Two hard
// stops override whatever the completion says: the iteration budget and the
// admitted-evidence target.
func (r *run) critique(ctx context.Context) CritiqueResult {
	if r.iteration >= r.budget.MaxIterations {
		return CritiqueResult{Verdict: VerdictStop, Rationale: fmt.Sprintf("iteration budget reached (%d)", r.budget.MaxIterations)}
	}
	if n := r.store.CountAdmittedAbove(r.e.config.MinScore, r.scorer.Weights); n >= r.budget.MinEvidenceCount {
		return CritiqueResult{Verdict: VerdictStop, Rationale: fmt.Sprintf("evidence target met: %d admitted items at or above score %.2f", n, r.e.config.MinScore)}
	}
	if r.store.Len() == 0 {
		return CritiqueResult{Verdict: VerdictStop, Rationale: "no evidence gathered"}
	}

	var cr critiqueResponse
	err := r.complete(ctx, criticSystemPrompt, r.evidenceDigest(), true, func(content string) error {
		cr = critiqueResponse{}
		if err := json.Unmarshal([]byte(stripCodeFence(content)), &cr); err != nil {
			return fmt.Errorf("parse critique: %w", err)
		}
		switch Verdict(cr.Verdict) {
		case VerdictStop:
			return nil
		case VerdictContinue:
			if len(dedupeQueries(cr.FollowUpQueries)) == 0 {
				return errors.New("continue verdict without follow-up queries")
			}
			return nil
		default:
			return fmt.Errorf("unknown verdict %q", cr.Verdict)
		}
	})
	if err != nil {
		r.e.logger.Warn("critique unusable, forcing stop", "error", err)
		return CritiqueResult{Verdict: VerdictStop, Rationale: criticFailureRationale}
	}

	if Verdict(cr.Verdict) == VerdictStop {
		return CritiqueResult{Verdict: VerdictStop, Rationale: cr.Rationale}
	}

	override := cr.Constraints
	if override != nil {
		if verr := override.Validate(); verr != nil {
			r.e.logger.Warn("dropping invalid critic constraints", "error", verr)
			override = nil
		}
	}

	next := r.iteration + 1
	var tasks []SubTask
	for _, q := range dedupeQueries(cr.FollowUpQueries) {
		tasks = append(tasks, SubTask{Query: q, Iteration: next, Constraints: override})
	}
	return CritiqueResult{Verdict: VerdictContinue, SubTasks: tasks, Rationale: cr.Rationale}
}

// evidenceDigest summarizes the store for the critic prompt: the question,
// budget position, and the highest-ranked admitted items.
func (r *run) evidenceDigest() string {
	items := r.store.Admitted()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research question: %s\n", r.req.Question)
	fmt.Fprintf(&sb, "Iteration: %d of %d\n", r.iteration, r.budget.MaxIterations)
	fmt.Fprintf(&sb, "Admitted evidence: %d (target %d)\n\n", len(items), r.budget.MinEvidenceCount)
	if len(items) > maxEvidenceInDigest {
		items = items[:maxEvidenceInDigest]
	}
	for _, it := range items {
		fmt.Fprintf(&sb, "- [%s] %s (%s, score %.2f)\n  %s\n",
			it.ID, it.Title, it.SourceType, r.scorer.Combined(it), it.Excerpt)
	}
	return sb.String()
}
