package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel routes completions by role of the system prompt so one model can
// play planner, critic and writer in a single run.
type fakeModel struct {
	mu       sync.Mutex
	planJSON string
	critique string
	report   string
	onCall   func(role string)
	calls    map[string]int
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		planJSON: `{"queries": ["graphene battery capacity", "graphene battery production cost"]}`,
		critique: `{"verdict": "stop", "rationale": "covered"}`,
		report:   "Findings indicate progress [1].",
		calls:    make(map[string]int),
	}
}

func (m *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var system string
	for _, mc := range msgs {
		if mc.Role == llms.ChatMessageTypeSystem {
			system = messageText(mc)
		}
	}

	var role, out string
	switch {
	case strings.Contains(system, "research planner"):
		role, out = "planner", m.planJSON
	case strings.Contains(system, "research critic"):
		role, out = "critic", m.critique
	default:
		role, out = "writer", m.report
	}
	m.count(role)
	if m.onCall != nil {
		m.onCall(role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if out == "" {
		return nil, errors.New("no scripted response")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func (m *fakeModel) count(role string) {
	m.mu.Lock()
	m.calls[role]++
	m.mu.Unlock()
}

func (m *fakeModel) callCount(role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[role]
}

func messageText(mc llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// fakeAdapter returns scripted documents and records the queries it saw.
type fakeAdapter struct {
	name       string
	docs       []Document
	err        error
	onRetrieve func()

	mu      sync.Mutex
	queries []string
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Retrieve(ctx context.Context, query string) ([]Document, error) {
	a.mu.Lock()
	a.queries = append(a.queries, query)
	a.mu.Unlock()
	if a.onRetrieve != nil {
		a.onRetrieve()
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.docs, nil
}

func (a *fakeAdapter) queryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queries)
}

// fakePersister captures the terminal report and evidence trail.
type fakePersister struct {
	mu       sync.Mutex
	report   *ResearchReport
	evidence []EvidenceItem
}

func (p *fakePersister) Persist(ctx context.Context, report *ResearchReport, evidence []EvidenceItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report = report
	p.evidence = evidence
	return nil
}

func twoDocs() []Document {
	return []Document{
		{URI: "https://doi.org/10.1000/1", Title: "Capacity study", Text: "graphene battery capacity doubled", SourceType: SourcePeerReviewed, PublishedYear: 2024},
		{URI: "https://example.com/news/1", Title: "Industry news", Text: "production cost remains high", SourceType: SourceNews, PublishedYear: 2025},
	}
}

func TestRunSingleIteration(t *testing.T) {
	model := newFakeModel()
	adapter := &fakeAdapter{name: "web", docs: twoDocs()}
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(context.Background(), Request{
		Question: "How close are graphene batteries to production?",
		Budget:   Budget{MaxIterations: 1},
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, StatusCompleted, report.Metadata.Status)
	assert.Equal(t, 1, report.Metadata.Iterations)
	assert.Equal(t, 2, report.Metadata.SubTasks)
	assert.Equal(t, 2, report.Metadata.EvidenceTotal, "same documents from both sub-tasks dedup by identity")
	assert.Equal(t, 2, report.Metadata.EvidenceAdmitted)

	assert.Contains(t, report.Text, "Findings indicate progress [1].")
	assert.Contains(t, report.Text, "## Sources")
	require.Len(t, report.Citations, 2)
	assert.Equal(t, 1, report.Citations[0].Ref)

	// The iteration budget of one is a hard stop; the critic model is never
	// consulted.
	assert.Equal(t, 1, model.callCount("planner"))
	assert.Equal(t, 0, model.callCount("critic"))
	assert.Equal(t, 1, model.callCount("writer"))

	// Both sub-task queries reached the adapter.
	assert.Equal(t, 2, adapter.queryCount())

	require.NotNil(t, persister.report)
	assert.Len(t, persister.evidence, 2)
}

func TestRunConstraintFiltering(t *testing.T) {
	model := newFakeModel()
	model.planJSON = `{"queries": ["graphene battery capacity"]}`
	adapter := &fakeAdapter{name: "web", docs: []Document{
		{URI: "https://doi.org/10.1000/1", Title: "Capacity study", Text: "capacity doubled", SourceType: SourcePeerReviewed, PublishedYear: 2020},
		{URI: "https://example.com/news/1", Title: "Old news", Text: "early prototype", SourceType: SourceNews, PublishedYear: 2015},
	}}
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(context.Background(), Request{
		Question: "How close are graphene batteries to production?",
		Constraints: ConstraintSet{
			SourceTypes: []SourceType{SourcePeerReviewed},
			TimeRange:   &TimeRange{StartYear: 2016},
		},
		Budget: Budget{MaxIterations: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Metadata.EvidenceTotal)
	assert.Equal(t, 1, report.Metadata.EvidenceAdmitted)
	require.Len(t, report.Citations, 1)
	assert.Equal(t, "https://doi.org/10.1000/1", report.Citations[0].SourceURI)

	// The rejected item stays on the trail with its reason.
	require.Len(t, persister.evidence, 2)
	var rejected *EvidenceItem
	for i := range persister.evidence {
		if !persister.evidence[i].Admitted {
			rejected = &persister.evidence[i]
		}
	}
	require.NotNil(t, rejected)
	assert.Equal(t, "source_type news not in allowed set", rejected.RejectReason)
	assert.Zero(t, rejected.Relevance)
	assert.Zero(t, rejected.Quality)
}

func TestRunIterationBudgetWithEagerCritic(t *testing.T) {
	model := newFakeModel()
	model.critique = `{"verdict": "continue", "rationale": "need cost data", "follow_up_queries": ["graphene battery cost 2026"]}`
	adapter := &fakeAdapter{name: "web", docs: twoDocs()}
	eng := New(model, []RetrievalAdapter{adapter})

	report, err := eng.Run(context.Background(), Request{
		Question: "How close are graphene batteries to production?",
		Budget:   Budget{MaxIterations: 2, MinEvidenceCount: 50},
	})
	require.NoError(t, err)

	// The critic keeps asking to continue but the budget caps the loop.
	assert.Equal(t, 2, report.Metadata.Iterations)
	assert.Equal(t, "iteration budget reached (2)", report.Metadata.Rationale)
	assert.Equal(t, 1, model.callCount("critic"))
	assert.Equal(t, 3, report.Metadata.SubTasks, "two planned plus one follow-up")
}

func TestRunEvidenceTargetStop(t *testing.T) {
	model := newFakeModel()
	model.planJSON = `{"queries": ["graphene battery capacity"]}`
	adapter := &fakeAdapter{name: "web", docs: []Document{
		{URI: "https://doi.org/10.1000/1", Title: "Study", Text: "graphene battery capacity", SourceType: SourcePeerReviewed, PublishedYear: 2026},
	}}
	eng := New(model, []RetrievalAdapter{adapter})

	report, err := eng.Run(context.Background(), Request{
		Question: "graphene battery capacity",
		Budget:   Budget{MaxIterations: 5, MinEvidenceCount: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Metadata.Iterations)
	assert.Contains(t, report.Metadata.Rationale, "evidence target met")
	assert.Equal(t, 0, model.callCount("critic"))
}

func TestRunCriticFailureForcesStop(t *testing.T) {
	model := newFakeModel()
	model.critique = "this is not json"
	adapter := &fakeAdapter{name: "web", docs: twoDocs()}
	eng := New(model, []RetrievalAdapter{adapter})

	report, err := eng.Run(context.Background(), Request{
		Question: "How close are graphene batteries to production?",
		Budget:   Budget{MaxIterations: 3, MinEvidenceCount: 50},
	})
	require.NoError(t, err, "a broken critic must not fail the run")

	assert.Equal(t, "critic failure, stopping", report.Metadata.Rationale)
	assert.Equal(t, 1, report.Metadata.Iterations)
	assert.Equal(t, StatusCompleted, report.Metadata.Status)
}

func TestRunAllAdaptersFail(t *testing.T) {
	model := newFakeModel()
	failing := &fakeAdapter{name: "web", err: errors.New("upstream 500")}
	eng := New(model, []RetrievalAdapter{failing})

	report, err := eng.Run(context.Background(), Request{
		Question: "How close are graphene batteries to production?",
		Budget:   Budget{MaxIterations: 2},
	})
	require.NoError(t, err, "adapter failures are absorbed, not surfaced")

	assert.Equal(t, "no evidence gathered", report.Metadata.Rationale)
	assert.Contains(t, report.Text, "No admissible evidence was found")
	assert.Empty(t, report.Citations)
	assert.Equal(t, 0, model.callCount("writer"), "no-evidence report is written without the model")
}

func TestRunCancelledBeforeEvidence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(newFakeModel(), []RetrievalAdapter{&fakeAdapter{name: "web"}})
	report, err := eng.Run(ctx, Request{Question: "anything"})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestRunCancelledMidRunProducesPartialReport(t *testing.T) {
	model := newFakeModel()
	model.planJSON = `{"queries": ["graphene battery capacity"]}`

	ctx, cancel := context.WithCancel(context.Background())
	adapter := &fakeAdapter{
		name: "web",
		docs: []Document{
			{URI: "https://example.org/1", Title: "One", Text: "first", SourceType: SourceOther},
			{URI: "https://example.org/2", Title: "Two", Text: "second", SourceType: SourceOther},
			{URI: "https://example.org/3", Title: "Three", Text: "third", SourceType: SourceOther},
		},
		onRetrieve: cancel,
	}
	defer cancel()
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(ctx, Request{Question: "graphene battery capacity"})
	require.NoError(t, err, "cancellation with evidence on hand yields a partial report")

	assert.Equal(t, StatusPartial, report.Metadata.Status)
	assert.Equal(t, 3, report.Metadata.EvidenceTotal)
	assert.NotEmpty(t, report.Citations)
	assert.Equal(t, "run cancelled before completion", report.Metadata.Rationale)
	require.NotNil(t, persister.report, "partial runs persist like completed ones")
}

func TestRunCancelledDuringCritiquingPartialReport(t *testing.T) {
	model := newFakeModel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model.onCall = func(role string) {
		if role == "critic" {
			cancel()
		}
	}
	adapter := &fakeAdapter{name: "web", docs: twoDocs()}
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(ctx, Request{
		Question: "How close are graphene batteries to production?",
		Budget:   Budget{MaxIterations: 3, MinEvidenceCount: 50},
	})
	require.NoError(t, err, "cancellation with evidence on hand yields a partial report")

	assert.Equal(t, StatusPartial, report.Metadata.Status)
	assert.Equal(t, criticFailureRationale, report.Metadata.Rationale)
	assert.Equal(t, 2, report.Metadata.EvidenceTotal, "evidence committed before the cancel is retained")
	assert.NotEmpty(t, report.Citations)
	require.NotNil(t, persister.report)
}

func TestRunCancelledDuringPlanning(t *testing.T) {
	model := newFakeModel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model.onCall = func(role string) {
		if role == "planner" {
			cancel()
		}
	}
	eng := New(model, []RetrievalAdapter{&fakeAdapter{name: "web"}})

	report, err := eng.Run(ctx, Request{Question: "anything"})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrCancelled, "no evidence yet, so the run reports cancellation, not a planning failure")
}

func TestRunPlanningFailureIsFatal(t *testing.T) {
	model := newFakeModel()
	model.planJSON = "not json either"
	eng := New(model, []RetrievalAdapter{&fakeAdapter{name: "web"}})

	report, err := eng.Run(context.Background(), Request{Question: "anything"})
	assert.Nil(t, report)
	var perr *PlanningError
	assert.ErrorAs(t, err, &perr)
}

func TestRunRequestValidation(t *testing.T) {
	eng := New(newFakeModel(), nil)

	_, err := eng.Run(context.Background(), Request{Question: "   "})
	assert.Error(t, err)

	_, err = eng.Run(context.Background(), Request{Question: "q", Mode: Mode("poem")})
	assert.Error(t, err)

	_, err = eng.Run(context.Background(), Request{
		Question:    "q",
		Constraints: ConstraintSet{TimeRange: &TimeRange{StartYear: 2030, EndYear: 2020}},
	})
	assert.Error(t, err)
}

func TestRunStateCallbackSequence(t *testing.T) {
	model := newFakeModel()
	adapter := &fakeAdapter{name: "web", docs: twoDocs()}

	var mu sync.Mutex
	var states []State
	eng := New(model, []RetrievalAdapter{adapter}, WithStateCallback(func(rs RunState) {
		mu.Lock()
		states = append(states, rs.State)
		mu.Unlock()
	}))

	_, err := eng.Run(context.Background(), Request{Question: "q", Budget: Budget{MaxIterations: 1}})
	require.NoError(t, err)

	require.NotEmpty(t, states)
	assert.Equal(t, StatePlanning, states[0])
	assert.Equal(t, StateDone, states[len(states)-1])
	assert.Contains(t, states, StateExecuting)
	assert.Contains(t, states, StateCritiquing)
	assert.Contains(t, states, StateSynthesizing)
}

func TestRunIngestsUploadedFiles(t *testing.T) {
	model := newFakeModel()
	model.planJSON = `{"queries": ["notes on graphene"]}`
	adapter := &fakeAdapter{name: "web"}
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(context.Background(), Request{
		Question: "what do my notes say about graphene?",
		Files: []FileDocument{
			{Name: "notes.txt", Chunks: []string{"graphene conducts heat well", "unrelated grocery list"}},
		},
		Budget: Budget{MaxIterations: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Metadata.EvidenceTotal)
	require.Len(t, persister.evidence, 2)
	for _, it := range persister.evidence {
		assert.Equal(t, "files", it.Provenance.Adapter)
		assert.True(t, strings.HasPrefix(it.SourceURI, "file://notes.txt#chunk-"), "got %s", it.SourceURI)
		assert.True(t, it.Admitted)
	}
}

func TestRunCriticConstraintNarrowing(t *testing.T) {
	model := newFakeModel()
	model.critique = `{"verdict": "continue", "rationale": "only recent peer-reviewed work now",
		"follow_up_queries": ["graphene battery trials"],
		"constraints": {"source_types": ["peer_reviewed"]}}`
	adapter := &fakeAdapter{name: "web", docs: []Document{
		{URI: "https://example.com/news/1", Title: "News", Text: "industry chatter", SourceType: SourceNews, PublishedYear: 2025},
	}}
	persister := &fakePersister{}
	eng := New(model, []RetrievalAdapter{adapter}, WithPersister(persister))

	report, err := eng.Run(context.Background(), Request{
		Question: "graphene batteries",
		Budget:   Budget{MaxIterations: 2, MinEvidenceCount: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Metadata.Iterations)

	// The news item passed in iteration one under the open floor; the
	// narrowed follow-up rejects nothing new since the doc dedups, so the
	// trail still has exactly one item.
	require.Len(t, persister.evidence, 1)
	assert.True(t, persister.evidence[0].Admitted)

	// Follow-up query from the critic reached the adapter.
	assert.Equal(t, 3, adapter.queryCount())
}
