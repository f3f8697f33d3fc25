package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const fetchMaxChars = 2000

// Fetcher downloads a page and reduces it to plain text. Search adapters use
// it to fill in content when the search backend only returned a link.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second}}
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// Fetch returns the page title and a bounded plain-text rendering of the
// body. Non-HTML responses are returned as-is, truncated.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deep-research-agent/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("failed to read page body: %w", err)
	}

	raw := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		if m := titlePattern.FindStringSubmatch(raw); len(m) > 1 {
			title = decodeEntities(strings.TrimSpace(m[1]))
		}
		raw = scriptPattern.ReplaceAllString(raw, " ")
		raw = tagPattern.ReplaceAllString(raw, " ")
		raw = decodeEntities(raw)
	}
	text = strings.TrimSpace(spacePattern.ReplaceAllString(raw, " "))
	if len(text) > fetchMaxChars {
		text = text[:fetchMaxChars]
	}
	return title, text, nil
}

func decodeEntities(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return replacer.Replace(s)
}
