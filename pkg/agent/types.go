package agent

import (
	"fmt"
	"time"
)

// Mode selects the shape of the final report.
type Mode string

const (
	ModeBriefing Mode = "briefing"
	ModeEssay    Mode = "essay"
)

// SourceType classifies where a piece of evidence came from.
type SourceType string

const (
	SourcePeerReviewed SourceType = "peer_reviewed"
	SourcePreprint     SourceType = "preprint"
	SourceNews         SourceType = "news"
	SourceEncyclopedia SourceType = "encyclopedia"
	SourceBlog         SourceType = "blog"
	SourceOther        SourceType = "other"
)

// TimeRange restricts evidence to a publication-year window.
// A zero bound is open on that side.
type TimeRange struct {
	StartYear int `json:"start_year,omitempty"`
	EndYear   int `json:"end_year,omitempty"`
}

// ConstraintSet is the user- or critic-supplied admission policy for evidence.
// An empty SourceTypes list means no source-type restriction.
type ConstraintSet struct {
	SourceTypes []SourceType `json:"source_types,omitempty"`
	TimeRange   *TimeRange   `json:"time_range,omitempty"`

	// Quality is reserved and currently has no effect on admission.
	Quality string `json:"quality,omitempty"`
}

// Validate checks internal consistency of the constraint set.
func (c ConstraintSet) Validate() error {
	if tr := c.TimeRange; tr != nil && tr.StartYear > 0 && tr.EndYear > 0 && tr.StartYear > tr.EndYear {
		return fmt.Errorf("invalid time range: start_year %d after end_year %d", tr.StartYear, tr.EndYear)
	}
	for _, st := range c.SourceTypes {
		switch st {
		case SourcePeerReviewed, SourcePreprint, SourceNews, SourceEncyclopedia, SourceBlog, SourceOther:
		default:
			return fmt.Errorf("unknown source type %q", st)
		}
	}
	return nil
}

// SubTask is one generated query: a unit of evidence-gathering work.
// It is created by the planner or the critic and consumed exactly once.
type SubTask struct {
	Query     string
	Iteration int

	// Constraints optionally narrows the run constraints for this sub-task.
	// It is merged against the user floor before use and can never loosen it.
	Constraints *ConstraintSet
}

// Verdict is the critic's decision.
type Verdict string

const (
	VerdictContinue Verdict = "continue"
	VerdictStop     Verdict = "stop"
)

// CritiqueResult is the typed outcome of one critique step. Free-form LLM
// output is validated into this struct before it can drive control flow.
type CritiqueResult struct {
	Verdict   Verdict
	SubTasks  []SubTask
	Rationale string
}

// Budget bounds a single research run.
type Budget struct {
	MaxIterations    int
	MinEvidenceCount int
	PerCallTimeout   time.Duration
}

const (
	defaultMaxIterations    = 3
	defaultMinEvidenceCount = 5
	defaultPerCallTimeout   = 30 * time.Second
)

func (b Budget) withDefaults() Budget {
	if b.MaxIterations <= 0 {
		b.MaxIterations = defaultMaxIterations
	}
	if b.MinEvidenceCount <= 0 {
		b.MinEvidenceCount = defaultMinEvidenceCount
	}
	if b.PerCallTimeout <= 0 {
		b.PerCallTimeout = defaultPerCallTimeout
	}
	return b
}

// FileDocument is the already-extracted text of one uploaded file, chunked
// once before the run starts. Chunks act as a pseudo-retrieval source during
// the first executing phase only.
type FileDocument struct {
	Name   string
	Chunks []string
}

// Request describes one research run.
type Request struct {
	Question    string
	Mode        Mode
	Constraints ConstraintSet
	Files       []FileDocument
	Budget      Budget
}

// RunStatus tells whether a report covers the full run or a cancelled remainder.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
)

// RunMetadata is attached to every report for auditability.
type RunMetadata struct {
	Iterations       int           `json:"iterations"`
	SubTasks         int           `json:"sub_tasks"`
	EvidenceTotal    int           `json:"evidence_total"`
	EvidenceAdmitted int           `json:"evidence_admitted"`
	Status           RunStatus     `json:"status"`
	Elapsed          time.Duration `json:"elapsed"`
	Rationale        string        `json:"rationale,omitempty"`
}

// Citation maps a reference number used in the report text back to the
// identity of the evidence item it cites.
type Citation struct {
	Ref        int    `json:"ref"`
	EvidenceID string `json:"evidence_id"`
	SourceURI  string `json:"source_uri"`
	Title      string `json:"title"`
}

// ResearchReport is the immutable final product of a run.
type ResearchReport struct {
	Question  string      `json:"question"`
	Mode      Mode        `json:"mode"`
	Text      string      `json:"text"`
	Citations []Citation  `json:"citations"`
	Metadata  RunMetadata `json:"metadata"`
}
