package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
	"github.com/mikeboe/deep-research-agent/pkg/clients"
	"github.com/mikeboe/deep-research-agent/pkg/config"
	"github.com/mikeboe/deep-research-agent/pkg/database"
	"github.com/mikeboe/deep-research-agent/pkg/embeddings"
	"github.com/mikeboe/deep-research-agent/pkg/ingest"
	"github.com/mikeboe/deep-research-agent/pkg/memory"
	"github.com/mikeboe/deep-research-agent/pkg/retrieval"
)

var (
	question    string
	mode        string
	sourceTypes []string
	fromYear    int
	toYear      int
	filePaths   []string
	maxIter     int
	minEvidence int
	callTimeout int
	noPersist   bool
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research is an autonomous agent that answers a research question by iterating through a plan-execute-reflect loop over web and academic sources, then writes a cited report.`,
		Run: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("question") {
				// Interactive mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter research question: ")
				input, _ := reader.ReadString('\n')
				question = strings.TrimSpace(input)
			}
			if question == "" {
				slog.Error("Question cannot be empty")
				os.Exit(1)
			}

			ctx := context.Background()
			report, err := runResearch(ctx, cfg)
			if err != nil {
				slog.Error("Error running research", "error", err)
				os.Exit(1)
			}

			fmt.Println(report.Text)
			if report.Metadata.Status == agent.StatusPartial {
				slog.Warn("Run was cancelled; report covers partial evidence")
			}
		},
	}

	rootCmd.Flags().StringVarP(&question, "question", "q", "", "The research question")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "briefing", "Report mode: briefing or essay")
	rootCmd.Flags().StringSliceVar(&sourceTypes, "source-types", nil, "Allowed source types (peer_reviewed, preprint, news, encyclopedia, blog, other)")
	rootCmd.Flags().IntVar(&fromYear, "from", 0, "Earliest publication year")
	rootCmd.Flags().IntVar(&toYear, "to", 0, "Latest publication year")
	rootCmd.Flags().StringSliceVarP(&filePaths, "file", "f", nil, "Files (txt, csv, pdf) to include as evidence sources")
	rootCmd.Flags().IntVar(&maxIter, "max-iterations", 0, "Maximum plan-execute-reflect iterations")
	rootCmd.Flags().IntVar(&minEvidence, "min-evidence", 0, "Evidence target before the critic may stop early")
	rootCmd.Flags().IntVar(&callTimeout, "per-call-timeout-ms", cfg.PerCallTimeoutMs, "Timeout per LLM call in milliseconds")
	rootCmd.Flags().BoolVar(&noPersist, "no-persist", false, "Skip persisting evidence to the database")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func runResearch(ctx context.Context, cfg *config.Config) (*agent.ResearchReport, error) {
	llm, err := buildLLM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM client: %w", err)
	}

	opts := []agent.Option{
		agent.WithMinScore(cfg.MinScore),
		agent.WithConcurrency(cfg.Concurrency),
	}

	var embedder agent.Embedder
	if cfg.GoogleApiKey != "" {
		googleEmbedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDim)
		if err != nil {
			slog.Warn("Embedder unavailable, falling back to lexical scoring", "error", err)
		} else {
			embedder = googleEmbedder
			opts = append(opts, agent.WithEmbedder(embedder))
		}
	}

	if !noPersist && embedder != nil && cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("Database unavailable, evidence will not be persisted", "error", err)
		} else {
			defer db.Close()
			persister, err := memory.NewPgVectorPersister(ctx, db, embedder, cfg.CollectionName, cfg.EmbeddingDim)
			if err != nil {
				slog.Warn("Evidence persistence disabled", "error", err)
			} else {
				opts = append(opts, agent.WithPersister(persister))
			}
		}
	}

	var files []agent.FileDocument
	if len(filePaths) > 0 {
		docs, errs := ingest.LoadPaths(ctx, filePaths, cfg.ChunkSize, cfg.ChunkOverlap)
		for _, err := range errs {
			slog.Warn("Skipping file", "error", err)
		}
		files = docs
	}

	engine := agent.New(llm, buildAdapters(cfg), opts...)

	constraints := agent.ConstraintSet{}
	for _, st := range sourceTypes {
		constraints.SourceTypes = append(constraints.SourceTypes, agent.SourceType(st))
	}
	if fromYear > 0 || toYear > 0 {
		constraints.TimeRange = &agent.TimeRange{StartYear: fromYear, EndYear: toYear}
	}

	return engine.Run(ctx, agent.Request{
		Question:    question,
		Mode:        agent.Mode(mode),
		Constraints: constraints,
		Files:       files,
		Budget: agent.Budget{
			MaxIterations:    maxIter,
			MinEvidenceCount: minEvidence,
			PerCallTimeout:   time.Duration(callTimeout) * time.Millisecond,
		},
	})
}

func buildLLM(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	if cfg.LLMProvider == "anthropic" {
		return clients.AnthropicAI(cfg.AnthropicApiKey, cfg.ReasoningModel)
	}
	return clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
}

func buildAdapters(cfg *config.Config) []agent.RetrievalAdapter {
	fetcher := retrieval.NewFetcher()
	adapters := []agent.RetrievalAdapter{
		retrieval.NewArxiv(5),
		retrieval.NewDuckDuckGo(5).WithFetcher(fetcher),
	}
	if cfg.TavilyApiKey != "" {
		adapters = append(adapters, retrieval.NewTavily(cfg.TavilyApiKey, "basic", 5))
	}
	return adapters
}
