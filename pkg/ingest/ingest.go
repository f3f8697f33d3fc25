// Package ingest turns uploaded TXT, CSV and PDF files into chunked
// documents the engine can score as a pseudo-retrieval source. Each file is
// extracted and chunked exactly once, before the first executing phase.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Extract pulls plain text out of one file's raw bytes, dispatching on the
// file extension.
func Extract(ctx context.Context, name string, data []byte) (string, error) {
	var loader documentloaders.Loader
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		loader = documentloaders.NewText(bytes.NewReader(data))
	case ".csv":
		loader = documentloaders.NewCSV(bytes.NewReader(data))
	case ".pdf":
		loader = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", name, err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) != "" {
			parts = append(parts, d.PageContent)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Chunk splits extracted text with the recursive character splitter.
func Chunk(name, text string, chunkSize, chunkOverlap int) (agent.FileDocument, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return agent.FileDocument{}, fmt.Errorf("failed to chunk %s: %w", name, err)
	}
	return agent.FileDocument{Name: name, Chunks: chunks}, nil
}

// LoadBytes extracts and chunks one uploaded file.
func LoadBytes(ctx context.Context, name string, data []byte, chunkSize, chunkOverlap int) (agent.FileDocument, error) {
	text, err := Extract(ctx, name, data)
	if err != nil {
		return agent.FileDocument{}, err
	}
	return Chunk(name, text, chunkSize, chunkOverlap)
}

// LoadPaths extracts and chunks files from disk. Files that cannot be read
// or extracted are skipped with their error collected into the second return.
func LoadPaths(ctx context.Context, paths []string, chunkSize, chunkOverlap int) ([]agent.FileDocument, []error) {
	var docs []agent.FileDocument
	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		doc, err := LoadBytes(ctx, filepath.Base(path), data, chunkSize, chunkOverlap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}
