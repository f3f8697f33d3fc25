package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const briefingSystemPrompt = `You are a research writer producing a structured briefing.
Write a short, bullet-oriented briefing that answers the research question from the numbered evidence.
Structure: a one-paragraph overview, then "Key Findings" as bullets, then "Uncertainties" as bullets.
Cite evidence inline with bracketed numbers like [1] or [2][5]. Use only the evidence provided; do not invent sources.`

const essaySystemPrompt = `You are a research writer producing a long-form essay.
Write cohesive prose that answers the research question from the numbered evidence: an introduction, a developed argument across several paragraphs, and a conclusion.
Cite evidence inline with bracketed numbers like [1] or [2][5]. Use only the evidence provided; do not invent sources.`

// maxCitedEvidence bounds how many items are offered for citation.
const maxCitedEvidence = 12

// synthesize produces the final report. Admitted evidence is ranked by
// combined score, ties broken by insertion order so earlier-discovered items
// win deterministically. With no admissible evidence it still produces a
// report saying so, without calling the completion capability.
func (r *run) synthesize(ctx context.Context, status RunStatus) (*ResearchReport, error) {
	admitted := r.store.Admitted()
	sort.SliceStable(admitted, func(i, j int) bool {
		return r.scorer.Combined(admitted[i]) > r.scorer.Combined(admitted[j])
	})
	if len(admitted) > maxCitedEvidence {
		admitted = admitted[:maxCitedEvidence]
	}

	citations := make([]Citation, 0, len(admitted))
	for i, it := range admitted {
		citations = append(citations, Citation{Ref: i + 1, EvidenceID: it.ID, SourceURI: it.SourceURI, Title: it.Title})
	}

	report := &ResearchReport{
		Question:  r.req.Question,
		Mode:      r.req.Mode,
		Citations: citations,
		Metadata: RunMetadata{
			Iterations:       r.iteration,
			SubTasks:         r.subTasksDone,
			EvidenceTotal:    r.store.Len(),
			EvidenceAdmitted: len(r.store.Admitted()),
			Status:           status,
			Elapsed:          time.Since(r.start),
			Rationale:        r.rationale,
		},
	}

	if len(admitted) == 0 {
		report.Text = noEvidenceReport(r.req.Question, r.store.Len())
		return report, nil
	}

	system := briefingSystemPrompt
	if r.req.Mode == ModeEssay {
		system = essaySystemPrompt
	}

	var text string
	err := r.complete(ctx, system, r.synthesisInput(admitted), false, func(content string) error {
		if strings.TrimSpace(content) == "" {
			return errors.New("empty report")
		}
		text = strings.TrimSpace(content)
		return nil
	})
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	report.Text = text + "\n\n" + sourcesSection(admitted)
	return report, nil
}

func (r *run) synthesisInput(admitted []EvidenceItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research question: %s\n\nEvidence:\n", r.req.Question)
	for i, it := range admitted {
		year := "n.d."
		if it.PublishedYear > 0 {
			year = fmt.Sprintf("%d", it.PublishedYear)
		}
		fmt.Fprintf(&sb, "[%d] %s (%s, %s) %s\n    %s\n", i+1, it.Title, it.SourceType, year, it.SourceURI, it.Excerpt)
	}
	return sb.String()
}

// sourcesSection appends a deterministic source list so every bracketed
// citation in the text maps back to an evidence identity.
func sourcesSection(admitted []EvidenceItem) string {
	var sb strings.Builder
	sb.WriteString("## Sources\n")
	for i, it := range admitted {
		fmt.Fprintf(&sb, "[%d] %s - %s (%s)\n", i+1, it.Title, it.SourceURI, it.SourceType)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func noEvidenceReport(question string, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research report: %s\n\n", question)
	sb.WriteString("No admissible evidence was found for this question under the given constraints.\n")
	if total > 0 {
		fmt.Fprintf(&sb, "%d items were gathered but rejected by the constraint filter; see the evidence trail for the rejection reasons.\n", total)
	}
	sb.WriteString("Consider relaxing the source-type or time-range constraints and running again.")
	return sb.String()
}
