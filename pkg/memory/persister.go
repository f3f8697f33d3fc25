// Package memory persists finished runs into a pgvector evidence collection
// so later chat sessions can search what the agent has already read.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
	"github.com/mikeboe/deep-research-agent/pkg/database"
	"github.com/mikeboe/deep-research-agent/pkg/vectorstore"
)

// PgVectorPersister writes admitted evidence into a pgvector collection when
// a run finishes. It satisfies the engine's persister capability and is
// append-only: re-running a question inserts new rows, never updates.
type PgVectorPersister struct {
	store    *vectorstore.PGVectorStore
	embedder agent.Embedder
	logger   *slog.Logger
}

// NewPgVectorPersister ensures the collection table exists and returns a
// persister writing to it.
func NewPgVectorPersister(ctx context.Context, db *database.PostgresDB, embedder agent.Embedder, collection string, dimension int) (*PgVectorPersister, error) {
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure vector extension: %w", err)
	}
	if err := db.CreateEvidenceTable(ctx, collection, dimension); err != nil {
		return nil, err
	}
	store, err := vectorstore.NewPGVectorStore(db.Pool, collection)
	if err != nil {
		return nil, err
	}
	return &PgVectorPersister{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}, nil
}

// WithLogger replaces the default logger.
func (p *PgVectorPersister) WithLogger(l *slog.Logger) *PgVectorPersister {
	p.logger = l
	return p
}

// Persist embeds and stores the admitted evidence of one finished run.
// Rejected items carry no useful content for later retrieval and are skipped.
// Items that fail to embed are logged and skipped rather than failing the
// whole batch.
func (p *PgVectorPersister) Persist(ctx context.Context, report *agent.ResearchReport, evidence []agent.EvidenceItem) error {
	var docs []vectorstore.Document
	for _, item := range evidence {
		if !item.Admitted {
			continue
		}

		vec, err := p.embedder.EmbedText(ctx, item.Excerpt)
		if err != nil {
			p.logger.Warn("Failed to embed evidence for persistence", "evidence_id", item.ID, "error", err)
			continue
		}

		docs = append(docs, vectorstore.Document{
			Content:   item.Excerpt,
			Embedding: vec,
			Metadata: map[string]interface{}{
				"source":         item.SourceURI,
				"title":          item.Title,
				"evidence_id":    item.ID,
				"source_type":    string(item.SourceType),
				"published_year": item.PublishedYear,
				"adapter":        item.Provenance.Adapter,
				"sub_task":       item.Provenance.SubTask,
				"iteration":      item.Provenance.Iteration,
				"question":       report.Question,
			},
		})
	}

	if len(docs) == 0 {
		return nil
	}

	if err := p.store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to persist evidence: %w", err)
	}

	p.logger.Info("Persisted run evidence", "question", report.Question, "items", len(docs))
	return nil
}
