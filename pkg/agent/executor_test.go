package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferSourceType(t *testing.T) {
	tests := []struct {
		uri  string
		want SourceType
	}{
		{"https://arxiv.org/abs/2401.1234", SourcePreprint},
		{"https://www.biorxiv.org/content/10.1101/x", SourcePreprint},
		{"https://doi.org/10.1000/182", SourcePeerReviewed},
		{"https://link.springer.com/journal/11071", SourcePeerReviewed},
		{"https://en.wikipedia.org/wiki/Graphene", SourceEncyclopedia},
		{"https://www.bbc.com/news/science-123", SourceNews},
		{"https://engineering.example.com/blog/post", SourceBlog},
		{"https://medium.com/@someone/post", SourceBlog},
		{"https://example.org/page", SourceOther},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, inferSourceType(tt.uri, "", ""))
		})
	}

	// Title and leading text count too.
	assert.Equal(t, SourcePeerReviewed, inferSourceType("https://example.org/x", "Proceedings of ICML", ""))
}

func TestInferPublishedYear(t *testing.T) {
	assert.Equal(t, 2023, inferPublishedYear("https://example.org/2023/01/report", "", 2026))
	assert.Equal(t, 2024, inferPublishedYear("https://example.org/x", "published in 2019, revised 2024", 2026))

	// Implausible numbers are not years.
	assert.Equal(t, 0, inferPublishedYear("https://example.org/1850/9999", "port 8080", 2026))
	assert.Equal(t, 0, inferPublishedYear("https://example.org/x", "", 2026))

	// One year into the future is tolerated for early-access dates.
	assert.Equal(t, 2027, inferPublishedYear("https://example.org/x", "to appear 2027", 2026))
	assert.Equal(t, 0, inferPublishedYear("https://example.org/x", "to appear 2030", 2026))
}

func TestMakeExcerpt(t *testing.T) {
	assert.Equal(t, "short text", makeExcerpt("  short text  "))

	long := strings.Repeat("ü", 600)
	got := makeExcerpt(long)
	assert.Equal(t, 500, len([]rune(got)))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "abc", head("abc", 10))
	assert.Equal(t, "ab", head("abcd", 2))
}
