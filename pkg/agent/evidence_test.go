package agent

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceID(t *testing.T) {
	a := EvidenceID("https://example.org/a", "excerpt")
	assert.Equal(t, a, EvidenceID("https://example.org/a", "excerpt"))

	// Either component changing changes the identity.
	assert.NotEqual(t, a, EvidenceID("https://example.org/b", "excerpt"))
	assert.NotEqual(t, a, EvidenceID("https://example.org/a", "other excerpt"))
	assert.Len(t, a, 16)
}

func TestEvidenceStoreDedup(t *testing.T) {
	store := NewEvidenceStore()

	item := EvidenceItem{ID: EvidenceID("u", "e"), SourceURI: "u", Excerpt: "e", Admitted: true}
	assert.True(t, store.Add(item))
	assert.False(t, store.Add(item), "same identity must not insert twice")
	assert.Equal(t, 1, store.Len())

	// Same source, different excerpt is a new identity.
	other := EvidenceItem{ID: EvidenceID("u", "e2"), SourceURI: "u", Excerpt: "e2"}
	assert.True(t, store.Add(other))
	assert.Equal(t, 2, store.Len())
}

func TestEvidenceStoreOrderAndAdmitted(t *testing.T) {
	store := NewEvidenceStore()
	for i := 0; i < 5; i++ {
		uri := fmt.Sprintf("https://example.org/%d", i)
		store.Add(EvidenceItem{ID: EvidenceID(uri, "x"), SourceURI: uri, Admitted: i%2 == 0})
	}

	items := store.Items()
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, fmt.Sprintf("https://example.org/%d", i), it.SourceURI, "insertion order must be preserved")
	}

	admitted := store.Admitted()
	require.Len(t, admitted, 3)
	assert.Equal(t, "https://example.org/0", admitted[0].SourceURI)
	assert.Equal(t, "https://example.org/4", admitted[2].SourceURI)
}

func TestEvidenceStoreConcurrentAdd(t *testing.T) {
	store := NewEvidenceStore()
	item := EvidenceItem{ID: EvidenceID("u", "e")}

	var wg sync.WaitGroup
	inserted := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted <- store.Add(item)
		}()
	}
	wg.Wait()
	close(inserted)

	wins := 0
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent insert may win")
	assert.Equal(t, 1, store.Len())
}

func TestCountAdmittedAbove(t *testing.T) {
	store := NewEvidenceStore()
	add := func(uri string, admitted bool, rel, qual float64) {
		store.Add(EvidenceItem{ID: EvidenceID(uri, "x"), SourceURI: uri, Admitted: admitted, Relevance: rel, Quality: qual})
	}
	add("a", true, 0.9, 0.9)  // combined 0.9
	add("b", true, 0.3, 0.3)  // combined 0.3
	add("c", false, 0.9, 0.9) // rejected, never counts

	assert.Equal(t, 1, store.CountAdmittedAbove(0.5, DefaultScoreWeights))
	assert.Equal(t, 2, store.CountAdmittedAbove(0.2, DefaultScoreWeights))
	assert.Equal(t, 0, store.CountAdmittedAbove(0.95, DefaultScoreWeights))
}
