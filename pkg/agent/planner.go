package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are a research planner.
Decompose the research question into specific web search queries that together cover the question.
Generate between 2 and 4 queries. Each query must be a standalone search string, not a sentence addressed to a person.

Return a JSON object only, no surrounding text:
{"queries": ["query one", "query two"]}`

type planResponse struct {
	Queries []string `json:"queries"`
}

// plan asks the completion capability for sub-task queries. On the first call
// critique is nil; when the critic asked to continue without supplying its own
// follow-ups, its rationale steers the next plan. The output is validated and
// deduplicated before it can drive the loop; nothing usable after one retry
// is a PlanningError.
func (r *run) plan(ctx context.Context, critique *CritiqueResult) ([]SubTask, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research question: %s\n", r.req.Question)
	if len(r.floor.SourceTypes) > 0 {
		fmt.Fprintf(&sb, "Allowed source types: %v\n", r.floor.SourceTypes)
	}
	if tr := r.floor.TimeRange; tr != nil {
		fmt.Fprintf(&sb, "Publication window: %d-%d\n", tr.StartYear, tr.EndYear)
	}
	if critique != nil {
		fmt.Fprintf(&sb, "Prior critique: %s\n", critique.Rationale)
		fmt.Fprintf(&sb, "Iteration: %d\n", r.iteration)
	}

	var pr planResponse
	err := r.complete(ctx, plannerSystemPrompt, sb.String(), true, func(content string) error {
		pr = planResponse{}
		if err := json.Unmarshal([]byte(stripCodeFence(content)), &pr); err != nil {
			return fmt.Errorf("parse plan: %w", err)
		}
		if len(dedupeQueries(pr.Queries)) == 0 {
			return errors.New("plan contains no usable queries")
		}
		return nil
	})
	if err != nil {
		return nil, &PlanningError{Err: err}
	}

	queries := dedupeQueries(pr.Queries)
	tasks := make([]SubTask, 0, len(queries))
	for _, q := range queries {
		tasks = append(tasks, SubTask{Query: q, Iteration: r.iteration})
	}
	r.e.logger.Info("plan ready", "queries", queries, "iteration", r.iteration)
	return tasks, nil
}

// dedupeQueries drops empty strings and duplicates, comparing queries after
// lowercasing and whitespace collapse. Order of first occurrence is kept.
func dedupeQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	var out []string
	for _, q := range queries {
		norm := normalizeQuery(q)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, strings.TrimSpace(q))
	}
	return out
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
