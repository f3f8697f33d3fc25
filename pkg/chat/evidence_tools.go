package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	deepagent "github.com/mikeboe/deep-research-agent/pkg/agent"
	"github.com/mikeboe/deep-research-agent/pkg/database"
	"github.com/mikeboe/deep-research-agent/pkg/vectorstore"
)

// EvidenceToolset exposes the persisted evidence collection to the chat agent
// and the MCP endpoint.
type EvidenceToolset struct {
	DB         *database.PostgresDB
	Embedder   deepagent.Embedder
	collection string
}

func NewEvidenceToolset(db *database.PostgresDB, embedder deepagent.Embedder, collection string) *EvidenceToolset {
	return &EvidenceToolset{
		DB:         db,
		Embedder:   embedder,
		collection: collection,
	}
}

func (t *EvidenceToolset) Name() string {
	return "evidence_tools"
}

func (t *EvidenceToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchEvidenceArgs, SearchEvidenceResp](
		functiontool.Config{
			Name:        "search_evidence",
			Description: "Search the gathered research evidence using semantic search.",
		},
		t.searchEvidenceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	findBySourceTool, err := functiontool.New[FindSourceArgs, FindSourceResp](
		functiontool.Config{
			Name:        "find_evidence_by_source",
			Description: "Find all evidence gathered from a specific source URI.",
		},
		t.findEvidenceBySourceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_source tool: %w", err)
	}

	findByMetadataTool, err := functiontool.New[FindMetadataArgs, FindMetadataResp](
		functiontool.Config{
			Name:        "find_evidence_by_metadata",
			Description: "Find evidence using logical filters on metadata such as source_type, published_year or question.",
		},
		t.findEvidenceByMetadataTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_metadata tool: %w", err)
	}

	return []tool.Tool{searchTool, findBySourceTool, findByMetadataTool}, nil
}

// --- Tool Implementations ---

type SearchEvidenceArgs struct {
	Query  string `json:"query" description:"The search query"`
	TopK   int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
	Source string `json:"source,omitempty" description:"Optional source URI filter"`
}

type SearchEvidenceResp struct {
	Results string `json:"results"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) searchEvidenceTool(ctx tool.Context, args SearchEvidenceArgs) (SearchEvidenceResp, error) {
	return t.SearchEvidence(ctx, args)
}

// SearchEvidence runs a semantic search over the persisted evidence.
func (t *EvidenceToolset) SearchEvidence(ctx context.Context, args SearchEvidenceArgs) (SearchEvidenceResp, error) {
	if args.TopK == 0 {
		args.TopK = 5
	}

	slog.Info("Search evidence", "query", args.Query, "topK", args.TopK, "source", args.Source)

	queryEmbedding, err := t.Embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchEvidenceResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	store, err := vectorstore.NewPGVectorStore(t.DB.Pool, t.collection)
	if err != nil {
		return SearchEvidenceResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.SimilaritySearch(ctx, queryEmbedding, args.TopK, args.Source)
	if err != nil {
		return SearchEvidenceResp{}, fmt.Errorf("failed to search: %w", err)
	}

	var formattedResults []string
	for _, result := range results {
		resSource := "unknown"
		if s, ok := result.Document.Metadata["source"].(string); ok {
			resSource = s
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("[Source]: %s\n[Content]: %s", resSource, result.Document.Content))

		for k, v := range result.Document.Metadata {
			if k == "source" {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n[%s]: %v", k, v))
		}

		formattedResults = append(formattedResults, sb.String())
	}

	serialized := strings.Join(formattedResults, "\n\n")
	return SearchEvidenceResp{Results: serialized}, nil
}

type FindSourceArgs struct {
	Source string `json:"source" description:"The source URI to find evidence for"`
}

type FindSourceResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) findEvidenceBySourceTool(ctx tool.Context, args FindSourceArgs) (FindSourceResp, error) {
	return t.FindEvidenceBySource(ctx, args)
}

// FindEvidenceBySource returns every persisted excerpt from one source URI.
func (t *EvidenceToolset) FindEvidenceBySource(ctx context.Context, args FindSourceArgs) (FindSourceResp, error) {
	store, err := vectorstore.NewPGVectorStore(t.DB.Pool, t.collection)
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.GetContentBySource(ctx, args.Source)
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to find evidence: %w", err)
	}

	var formattedResults []string
	for _, result := range results {
		formattedResults = append(formattedResults, result.Content)
	}

	serialized := strings.Join(formattedResults, "\n\n")
	return FindSourceResp{Content: serialized}, nil
}

type FindMetadataArgs struct {
	Filter map[string]interface{} `json:"filter" description:"JSON filter object with logical operators ($and, $or, $not)"`
}

type FindMetadataResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *EvidenceToolset) findEvidenceByMetadataTool(ctx tool.Context, args FindMetadataArgs) (FindMetadataResp, error) {
	return t.FindEvidenceByMetadata(ctx, args)
}

// FindEvidenceByMetadata returns evidence matching a metadata filter.
func (t *EvidenceToolset) FindEvidenceByMetadata(ctx context.Context, args FindMetadataArgs) (FindMetadataResp, error) {
	store, err := vectorstore.NewPGVectorStore(t.DB.Pool, t.collection)
	if err != nil {
		return FindMetadataResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.GetContentByMetadata(ctx, args.Filter)
	if err != nil {
		return FindMetadataResp{}, fmt.Errorf("failed to find evidence: %w", err)
	}

	var formattedResults []string
	for _, result := range results {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("[Content]: %s", result.Content))
		for k, v := range result.Metadata {
			sb.WriteString(fmt.Sprintf("\n[%s]: %v", k, v))
		}
		formattedResults = append(formattedResults, sb.String())
	}

	serialized := strings.Join(formattedResults, "\n\n")
	return FindMetadataResp{Content: serialized}, nil
}
