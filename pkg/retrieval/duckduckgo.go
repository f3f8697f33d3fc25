package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
)

const ddgEndpoint = "https://lite.duckduckgo.com/lite/"

// ddgThrottle enforces one query per second across all DuckDuckGo instances.
var ddgThrottle struct {
	mu   sync.Mutex
	last time.Time
}

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface. It needs no API key
// and serves as the general-purpose web adapter. When a Fetcher is attached,
// hits without a snippet are enriched with fetched page text.
type DuckDuckGo struct {
	client     *http.Client
	fetcher    *Fetcher
	maxResults int
}

func NewDuckDuckGo(maxResults int) *DuckDuckGo {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &DuckDuckGo{
		client:     &http.Client{Timeout: 15 * time.Second},
		maxResults: maxResults,
	}
}

// WithFetcher attaches a page fetcher for snippet-less results.
func (d *DuckDuckGo) WithFetcher(f *Fetcher) *DuckDuckGo {
	d.fetcher = f
	return d
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Retrieve(ctx context.Context, query string) ([]agent.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if err := d.throttle(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ddgEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deep-research-agent/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read duckduckgo response: %w", err)
	}

	docs := parseLiteResults(string(body), d.maxResults)
	if d.fetcher != nil {
		for i := range docs {
			if docs[i].Text != "" {
				continue
			}
			title, text, ferr := d.fetcher.Fetch(ctx, docs[i].URI)
			if ferr != nil {
				continue
			}
			docs[i].Text = text
			if docs[i].Title == "" {
				docs[i].Title = title
			}
		}
	}
	return docs, nil
}

func (d *DuckDuckGo) throttle(ctx context.Context) error {
	ddgThrottle.mu.Lock()
	wait := time.Until(ddgThrottle.last.Add(time.Second))
	if wait > 0 {
		ddgThrottle.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		ddgThrottle.mu.Lock()
	}
	ddgThrottle.last = time.Now()
	ddgThrottle.mu.Unlock()
	return nil
}

var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkAltPattern = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
)

// parseLiteResults extracts result links and snippets from the lite HTML
// page. The lite layout is stable enough for regex scraping.
func parseLiteResults(html string, limit int) []agent.Document {
	matches := ddgLinkPattern.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		matches = ddgLinkAltPattern.FindAllStringSubmatch(html, -1)
	}
	snippets := ddgSnippetPattern.FindAllStringSubmatch(html, -1)

	var docs []agent.Document
	seen := make(map[string]bool)
	for i, m := range matches {
		if len(m) < 3 {
			continue
		}
		link := strings.TrimSpace(m[1])
		title := decodeEntities(strings.TrimSpace(tagPattern.ReplaceAllString(m[2], "")))
		if link == "" || title == "" || seen[link] {
			continue
		}
		if strings.Contains(link, "duckduckgo.com") || strings.HasPrefix(link, "/") {
			continue
		}
		seen[link] = true

		snippet := ""
		if i < len(snippets) && len(snippets[i]) > 1 {
			snippet = decodeEntities(strings.TrimSpace(tagPattern.ReplaceAllString(snippets[i][1], "")))
		}
		docs = append(docs, agent.Document{URI: link, Title: title, Text: snippet})
		if len(docs) >= limit {
			break
		}
	}
	return docs
}
