package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(model *fakeModel) *run {
	eng := New(model, nil)
	return &run{
		e:         eng,
		req:       Request{Question: "graphene batteries", Mode: ModeBriefing},
		budget:    Budget{}.withDefaults(),
		store:     NewEvidenceStore(),
		scorer:    Scorer{Weights: eng.config.Weights, CurrentYear: 2026},
		iteration: 1,
		start:     time.Now(),
	}
}

func TestSynthesizeRanksCitationsByScore(t *testing.T) {
	model := newFakeModel()
	r := newTestRun(model)

	add := func(uri string, rel, qual float64) {
		r.store.Add(EvidenceItem{
			ID: EvidenceID(uri, "x"), SourceURI: uri, Title: uri, Excerpt: "x",
			SourceType: SourceOther, Admitted: true, Relevance: rel, Quality: qual,
		})
	}
	add("https://example.org/low", 0.2, 0.2)
	add("https://example.org/high", 0.9, 0.9)
	add("https://example.org/mid-a", 0.5, 0.5)
	add("https://example.org/mid-b", 0.5, 0.5) // same score, inserted later

	report, err := r.synthesize(context.Background(), StatusCompleted)
	require.NoError(t, err)

	require.Len(t, report.Citations, 4)
	assert.Equal(t, "https://example.org/high", report.Citations[0].SourceURI)
	assert.Equal(t, "https://example.org/mid-a", report.Citations[1].SourceURI, "ties break by insertion order")
	assert.Equal(t, "https://example.org/mid-b", report.Citations[2].SourceURI)
	assert.Equal(t, "https://example.org/low", report.Citations[3].SourceURI)
	for i, c := range report.Citations {
		assert.Equal(t, i+1, c.Ref)
	}
}

func TestSynthesizeCapsCitedEvidence(t *testing.T) {
	model := newFakeModel()
	r := newTestRun(model)

	for i := 0; i < maxCitedEvidence+5; i++ {
		uri := "https://example.org/" + string(rune('a'+i))
		r.store.Add(EvidenceItem{
			ID: EvidenceID(uri, "x"), SourceURI: uri, Title: uri, Excerpt: "x",
			SourceType: SourceOther, Admitted: true, Relevance: 0.5, Quality: 0.5,
		})
	}

	report, err := r.synthesize(context.Background(), StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, report.Citations, maxCitedEvidence)
	assert.Equal(t, maxCitedEvidence+5, report.Metadata.EvidenceAdmitted, "metadata counts all admitted items, not just cited ones")
}

func TestSynthesizeWithoutEvidence(t *testing.T) {
	model := newFakeModel()
	r := newTestRun(model)

	// One rejected item on the trail, nothing admitted.
	r.store.Add(EvidenceItem{ID: EvidenceID("u", "x"), SourceURI: "u", Excerpt: "x", RejectReason: "source_type blog not in allowed set"})

	report, err := r.synthesize(context.Background(), StatusCompleted)
	require.NoError(t, err)

	assert.Contains(t, report.Text, "No admissible evidence was found")
	assert.Contains(t, report.Text, "1 items were gathered but rejected")
	assert.Empty(t, report.Citations)
	assert.Equal(t, 0, model.callCount("writer"))
}

func TestSynthesizeAppendsSources(t *testing.T) {
	model := newFakeModel()
	r := newTestRun(model)
	r.store.Add(EvidenceItem{
		ID: EvidenceID("https://example.org/a", "x"), SourceURI: "https://example.org/a",
		Title: "A study", Excerpt: "x", SourceType: SourcePreprint, Admitted: true,
		Relevance: 0.8, Quality: 0.8,
	})

	report, err := r.synthesize(context.Background(), StatusCompleted)
	require.NoError(t, err)

	assert.Contains(t, report.Text, model.report)
	assert.Contains(t, report.Text, "## Sources")
	assert.Contains(t, report.Text, "[1] A study - https://example.org/a (preprint)")
}

func TestSynthesizeEssayMode(t *testing.T) {
	model := newFakeModel()
	r := newTestRun(model)
	r.req.Mode = ModeEssay
	r.store.Add(EvidenceItem{
		ID: EvidenceID("u", "x"), SourceURI: "u", Title: "t", Excerpt: "x",
		SourceType: SourceOther, Admitted: true, Relevance: 0.5, Quality: 0.5,
	})

	report, err := r.synthesize(context.Background(), StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, ModeEssay, report.Mode)
	assert.Equal(t, 1, model.callCount("writer"))
}
