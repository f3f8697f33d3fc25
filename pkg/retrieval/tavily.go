package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API. Good at recent web content, which makes
// it the natural adapter for news-leaning questions.
type Tavily struct {
	apiKey     string
	depth      string
	client     *http.Client
	maxResults int
}

func NewTavily(apiKey, depth string, maxResults int) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Tavily{
		apiKey:     apiKey,
		depth:      depth,
		client:     &http.Client{Timeout: 15 * time.Second},
		maxResults: maxResults,
	}
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Retrieve(ctx context.Context, query string) ([]agent.Document, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"api_key":     t.apiKey,
		"depth":       t.depth,
		"max_results": t.maxResults,
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}

	docs := make([]agent.Document, 0, len(response.Results))
	for _, r := range response.Results {
		if r.URL == "" {
			continue
		}
		docs = append(docs, agent.Document{URI: r.URL, Title: r.Title, Text: r.Content})
		if len(docs) >= t.maxResults {
			break
		}
	}
	return docs, nil
}

// post sends the search request, backing off and retrying on 429 with the
// delay doubling up to 30 seconds.
func (t *Tavily) post(ctx context.Context, payload []byte) (*http.Response, error) {
	delay := time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
