package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const maxExcerptRunes = 500

// execute runs every sub-task of one executing phase. Sub-tasks are
// dispatched concurrently; they share no mutable state except the evidence
// store, whose inserts are serialized. Uploaded file chunks join as a
// pseudo-retrieval source on the first iteration only.
func (r *run) execute(ctx context.Context, tasks []SubTask) {
	if len(tasks) == 0 {
		return
	}
	if r.iteration == 1 && len(r.req.Files) > 0 {
		r.ingestFileChunks(ctx, tasks)
	}

	sem := make(chan struct{}, r.e.config.Concurrency)
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task SubTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r.executeSubTask(ctx, task)
		}(task)
	}
	wg.Wait()
	r.subTasksDone += len(tasks)
}

// executeSubTask fans one query out to every configured retrieval adapter.
// A failing or timed-out adapter is skipped; it is never fatal to the
// sub-task.
func (r *run) executeSubTask(ctx context.Context, task SubTask) {
	effective := MergeConstraints(r.floor, task.Constraints)
	queryVec := r.embed(ctx, task.Query)

	for _, adapter := range r.e.adapters {
		if ctx.Err() != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, r.budget.PerCallTimeout)
		docs, err := adapter.Retrieve(callCtx, task.Query)
		cancel()
		if err != nil {
			aerr := &AdapterError{Adapter: adapter.Name(), Query: task.Query, Err: err}
			r.e.logger.Warn("retrieval adapter failed, skipping", "error", aerr)
			continue
		}
		r.e.logger.Info("retrieved documents", "adapter", adapter.Name(), "query", task.Query, "count", len(docs))
		for _, doc := range docs {
			r.addDocument(ctx, doc, task, adapter.Name(), effective, queryVec)
		}
	}
}

// addDocument normalizes a raw document into an evidence item, applies the
// constraint filter, scores admitted items and appends to the store. Rejected
// items are stored too, with zero scores and the rejection reason.
func (r *run) addDocument(ctx context.Context, doc Document, task SubTask, adapter string, cs ConstraintSet, queryVec []float32) {
	excerpt := makeExcerpt(doc.Text)
	if excerpt == "" {
		excerpt = strings.TrimSpace(doc.Title)
	}
	if excerpt == "" || doc.URI == "" {
		return
	}

	sourceType := doc.SourceType
	if sourceType == "" {
		sourceType = inferSourceType(doc.URI, doc.Title, doc.Text)
	}
	year := doc.PublishedYear
	if year == 0 {
		year = inferPublishedYear(doc.URI, doc.Text, r.scorer.CurrentYear)
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = doc.URI
	}

	item := EvidenceItem{
		ID:            EvidenceID(doc.URI, excerpt),
		SourceURI:     doc.URI,
		Title:         title,
		Excerpt:       excerpt,
		SourceType:    sourceType,
		PublishedYear: year,
		Provenance:    Provenance{SubTask: task.Query, Adapter: adapter, Iteration: task.Iteration},
	}

	adm := ApplyConstraints(item, cs)
	item.Admitted = adm.Admitted
	item.RejectReason = adm.Reason
	if adm.Admitted {
		docVec := r.embed(ctx, excerpt)
		item.Relevance = r.scorer.Relevance(task.Query, excerpt, queryVec, docVec)
		item.Quality = r.scorer.Quality(sourceType, year)
	}

	if r.store.Add(item) {
		r.e.logger.Debug("evidence stored",
			"id", item.ID, "admitted", item.Admitted, "reason", item.RejectReason,
			"source_type", item.SourceType, "adapter", adapter)
	}
}

// ingestFileChunks feeds already-extracted file chunks into the store. Each
// chunk is attributed to the sub-task it overlaps most with; identity-based
// dedup keeps chunks from multiplying across sub-tasks.
func (r *run) ingestFileChunks(ctx context.Context, tasks []SubTask) {
	for _, f := range r.req.Files {
		for i, chunk := range f.Chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			best := tasks[0]
			bestScore := lexicalOverlap(best.Query, chunk)
			for _, t := range tasks[1:] {
				if sc := lexicalOverlap(t.Query, chunk); sc > bestScore {
					best, bestScore = t, sc
				}
			}
			doc := Document{
				URI:        fmt.Sprintf("file://%s#chunk-%d", f.Name, i),
				Title:      f.Name,
				Text:       chunk,
				SourceType: SourceOther,
			}
			r.addDocument(ctx, doc, best, "files", MergeConstraints(r.floor, best.Constraints), nil)
		}
	}
}

// embed computes an embedding with a bounded timeout. Absence of the
// capability or any failure returns nil, which selects the lexical fallback
// in the scorer.
func (r *run) embed(ctx context.Context, text string) []float32 {
	if r.e.embedder == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.budget.PerCallTimeout)
	defer cancel()
	vec, err := r.e.embedder.EmbedText(callCtx, text)
	if err != nil {
		r.e.logger.Warn("lexical scoring fallback", "error", &ScoringError{Err: err})
		return nil
	}
	return vec
}

func makeExcerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > maxExcerptRunes {
		return string(runes[:maxExcerptRunes])
	}
	return text
}

// inferSourceType classifies a document when the adapter supplied no explicit
// metadata. The heuristic looks at the URI, title and leading content.
func inferSourceType(uri, title, text string) SourceType {
	low := strings.ToLower(uri + " " + title + " " + head(text, 500))
	switch {
	case strings.Contains(low, "arxiv") || strings.Contains(low, "biorxiv") || strings.Contains(low, "medrxiv"):
		return SourcePreprint
	case strings.Contains(low, "doi.org") || strings.Contains(low, "journal") || strings.Contains(low, "proceedings"):
		return SourcePeerReviewed
	case strings.Contains(low, "wikipedia.org") || strings.Contains(low, "encyclopedia"):
		return SourceEncyclopedia
	case strings.Contains(low, "news") || strings.Contains(low, "press"):
		return SourceNews
	case strings.Contains(low, "blog") || strings.Contains(low, "medium.com"):
		return SourceBlog
	default:
		return SourceOther
	}
}

// inferPublishedYear scans the URI and leading content for a plausible
// four-digit year and keeps the latest one. Zero means unknown.
func inferPublishedYear(uri, text string, currentYear int) int {
	latest := 0
	for _, tok := range strings.FieldsFunc(uri+" "+head(text, 500), func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if len(tok) != 4 {
			continue
		}
		y, err := strconv.Atoi(tok)
		if err != nil || y < 1900 || y > currentYear+1 {
			continue
		}
		if y > latest {
			latest = y
		}
	}
	return latest
}

func head(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n])
	}
	return text
}
