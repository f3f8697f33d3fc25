// Package retrieval provides the concrete retrieval adapters the engine fans
// queries out to: arXiv, DuckDuckGo and Tavily, plus a page fetcher for
// enriching bare search hits.
package retrieval

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv Atom API. Results are preprints by definition.
type Arxiv struct {
	client     *http.Client
	maxResults int
}

func NewArxiv(maxResults int) *Arxiv {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Arxiv{
		client:     &http.Client{Timeout: 15 * time.Second},
		maxResults: maxResults,
	}
}

func (a *Arxiv) Name() string { return "arxiv" }

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Links     []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// Retrieve searches arXiv and returns one document per entry, carrying the
// abstract as text and the publication year from the Atom timestamp.
func (a *Arxiv) Retrieve(ctx context.Context, query string) ([]agent.Document, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("max_results", strconv.Itoa(a.maxResults))
	params.Set("start", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arxiv returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read arxiv response: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arxiv feed: %w", err)
	}

	docs := make([]agent.Document, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		uri := entry.ID
		for _, link := range entry.Links {
			if link.Type == "application/pdf" {
				uri = link.Href
				break
			}
		}
		if uri == "" {
			continue
		}
		docs = append(docs, agent.Document{
			URI:           uri,
			Title:         entry.Title,
			Text:          entry.Summary,
			SourceType:    agent.SourcePreprint,
			PublishedYear: publishedYear(entry.Published),
		})
	}
	return docs, nil
}

func publishedYear(published string) int {
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return 0
	}
	return t.Year()
}
