package agent

import "context"

// Document is a raw result handed back by a retrieval adapter before it is
// normalized into evidence. SourceType and PublishedYear are optional; the
// executor infers them when the adapter leaves them unset.
type Document struct {
	URI           string
	Title         string
	Text          string
	SourceType    SourceType
	PublishedYear int
}

// RetrievalAdapter turns a query into raw documents. Implementations are
// independent of each other; a failing adapter is skipped for that sub-task
// and never fails the run.
type RetrievalAdapter interface {
	Name() string
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// Embedder is the optional embedding capability used for relevance scoring.
// When absent the scorer falls back to lexical similarity.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Persister receives the finished report and the full evidence trail exactly
// once when a run reaches its terminal state. Implementations are append-only.
type Persister interface {
	Persist(ctx context.Context, report *ResearchReport, evidence []EvidenceItem) error
}

// NoopPersister is the fallback when long-term memory is disabled.
type NoopPersister struct{}

func (NoopPersister) Persist(context.Context, *ResearchReport, []EvidenceItem) error { return nil }
