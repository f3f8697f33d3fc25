package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Provenance records which sub-task and retrieval adapter produced an item.
type Provenance struct {
	SubTask   string `json:"sub_task"`
	Adapter   string `json:"adapter"`
	Iteration int    `json:"iteration"`
}

// EvidenceItem is a normalized, scored, provenance-tagged excerpt. Items are
// immutable once stored; re-encountering the same source with changed content
// yields a new identity rather than an in-place update.
type EvidenceItem struct {
	ID            string     `json:"id"`
	SourceURI     string     `json:"source_uri"`
	Title         string     `json:"title"`
	Excerpt       string     `json:"excerpt"`
	SourceType    SourceType `json:"source_type"`
	PublishedYear int        `json:"published_year,omitempty"`
	Relevance     float64    `json:"relevance_score"`
	Quality       float64    `json:"quality_score"`
	Admitted      bool       `json:"admitted"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	Provenance    Provenance `json:"provenance"`
}

// EvidenceID derives the stable identity of an item from its source URI and
// extracted excerpt.
func EvidenceID(sourceURI, excerpt string) string {
	h := sha256.Sum256([]byte(sourceURI + "\x00" + excerpt))
	return hex.EncodeToString(h[:8])
}

// EvidenceStore holds every item gathered during one run, in insertion order,
// deduplicated by identity. Rejected items are retained for explainability.
// Inserts are serialized; the store is safe for concurrent use by executor
// goroutines.
type EvidenceStore struct {
	mu    sync.Mutex
	items []EvidenceItem
	index map[string]int
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{index: make(map[string]int)}
}

// Add inserts an item unless its identity is already present. The check and
// the insert happen under one lock so duplicates can never race in. It
// reports whether the item was inserted.
func (s *EvidenceStore) Add(item EvidenceItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[item.ID]; ok {
		return false
	}
	s.index[item.ID] = len(s.items)
	s.items = append(s.items, item)
	return true
}

// Len reports the number of stored items, admitted or not.
func (s *EvidenceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a snapshot of all items in insertion order.
func (s *EvidenceStore) Items() []EvidenceItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EvidenceItem, len(s.items))
	copy(out, s.items)
	return out
}

// Admitted returns a snapshot of the admitted items in insertion order.
func (s *EvidenceStore) Admitted() []EvidenceItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EvidenceItem
	for _, it := range s.items {
		if it.Admitted {
			out = append(out, it)
		}
	}
	return out
}

// CountAdmittedAbove counts admitted items whose combined score meets the
// threshold. The critic uses it for the evidence-target hard stop.
func (s *EvidenceStore) CountAdmittedAbove(threshold float64, w ScoreWeights) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.Admitted && w.Combined(it.Relevance, it.Quality) >= threshold {
			n++
		}
	}
	return n
}
