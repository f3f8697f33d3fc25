package agent

import (
	"math"
	"strings"
)

// ScoreWeights configures the combined score used for ranking and citation
// selection. Recognized options are the relevance and quality weights.
type ScoreWeights struct {
	Relevance float64
	Quality   float64
}

// DefaultScoreWeights matches the 0.7/0.3 default split.
var DefaultScoreWeights = ScoreWeights{Relevance: 0.7, Quality: 0.3}

// Combined computes the weighted sum of the two component scores,
// normalized so degenerate weights still land in [0,1].
func (w ScoreWeights) Combined(relevance, quality float64) float64 {
	total := w.Relevance + w.Quality
	if total <= 0 {
		w = DefaultScoreWeights
		total = w.Relevance + w.Quality
	}
	return clamp01((w.Relevance*relevance + w.Quality*quality) / total)
}

// sourceTypeWeights is the fixed quality weight table. Peer-reviewed work
// outranks preprints, which outrank tertiary and popular sources.
var sourceTypeWeights = map[SourceType]float64{
	SourcePeerReviewed: 1.0,
	SourcePreprint:     0.85,
	SourceEncyclopedia: 0.7,
	SourceNews:         0.55,
	SourceBlog:         0.4,
	SourceOther:        0.3,
}

// recencyHorizonYears is where the recency component saturates at zero.
const recencyHorizonYears = 25

// Scorer produces relevance and quality scores for evidence items. All
// methods are pure functions of their inputs and the fixed fields below;
// CurrentYear is captured once per run so recency is stable across the run.
type Scorer struct {
	Weights     ScoreWeights
	CurrentYear int
}

// Relevance scores how well an excerpt answers a sub-task query. When both
// embedding vectors are supplied it uses cosine similarity; otherwise it
// falls back to lexical token overlap.
func (s Scorer) Relevance(query, excerpt string, queryVec, docVec []float32) float64 {
	if len(queryVec) > 0 && len(queryVec) == len(docVec) {
		return clamp01(cosine(queryVec, docVec))
	}
	return lexicalOverlap(query, excerpt)
}

// Quality scores an item from its source type and publication recency.
// The recency component is monotonically non-increasing with age and
// saturates at zero; an unknown year scores a neutral 0.5.
func (s Scorer) Quality(st SourceType, publishedYear int) float64 {
	tw, ok := sourceTypeWeights[st]
	if !ok {
		tw = sourceTypeWeights[SourceOther]
	}
	return clamp01(0.7*tw + 0.3*s.recency(publishedYear))
}

// Combined is the ranking score for one item.
func (s Scorer) Combined(item EvidenceItem) float64 {
	return s.Weights.Combined(item.Relevance, item.Quality)
}

func (s Scorer) recency(year int) float64 {
	if year <= 0 {
		return 0.5
	}
	age := s.CurrentYear - year
	if age <= 0 {
		return 1
	}
	if age >= recencyHorizonYears {
		return 0
	}
	return 1 - float64(age)/recencyHorizonYears
}

// lexicalOverlap measures the fraction of query tokens that appear in the
// first 400 tokens of the excerpt. Both sides are lowercased.
func lexicalOverlap(query, excerpt string) float64 {
	qt := tokenSet(query, -1)
	ct := tokenSet(excerpt, 400)
	if len(qt) == 0 || len(ct) == 0 {
		return 0.1
	}
	hits := 0
	for tok := range qt {
		if _, ok := ct[tok]; ok {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(qt)))
}

func tokenSet(text string, limit int) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	if limit > 0 && len(fields) > limit {
		fields = fields[:limit]
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
