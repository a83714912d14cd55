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

	"github.com/mikeboe/research-agent/pkg/agents"
	"github.com/mikeboe/research-agent/pkg/clients"
	"github.com/mikeboe/research-agent/pkg/config"
	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/embeddings"
	"github.com/mikeboe/research-agent/pkg/pipeline"
	"github.com/mikeboe/research-agent/pkg/store"
	"github.com/mikeboe/research-agent/pkg/vectorstore"
	"github.com/mikeboe/research-agent/pkg/websearch"
)

var query string

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "research-agent",
		Short: "A terminal-based research pipeline",
		Long:  `research-agent runs the full web search, document retrieval, analysis and report writing pipeline for a single query and prints the report.`,
		Run: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("query") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)

				fmt.Print("Enter research query: ")
				input, _ := reader.ReadString('\n')
				query = strings.TrimSpace(input)
			}
			if query == "" {
				slog.Error("Query cannot be empty")
				os.Exit(1)
			}

			if err := runResearch(query); err != nil {
				slog.Error("Research failed", "error", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research query")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func runResearch(query string) error {
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx, cfg.CollectionName, embeddings.Dimensions); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return fmt.Errorf("failed to init embedder: %w", err)
	}

	index, err := vectorstore.NewIndex(db.Pool, cfg.CollectionName, embedder, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("failed to init vector index: %w", err)
	}

	llm, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, clients.ProModel)
	if err != nil {
		return err
	}

	var provider agents.SearchProvider
	if cfg.TavilyApiKey != "" {
		provider = websearch.NewTavily(cfg.TavilyApiKey)
	} else {
		slog.Warn("TAVILY_API_KEY not set, falling back to arXiv search")
		provider = websearch.NewArxiv()
	}

	// One-shot runs keep the lifecycle in memory; results live in the report file.
	lifecycle := store.NewMemory()
	orc := pipeline.New(lifecycle,
		agents.NewWebSearch(provider, cfg.MaxSearchResults),
		agents.NewDocumentRetrieval(index, cfg.TopK),
		agents.NewAnalysis(llm),
		agents.NewWriter(llm),
	)
	orc.StepTimeout = cfg.StepTimeout

	slog.Info("Starting research", "query", query)

	runCtx, cancel := context.WithTimeout(ctx, cfg.ResearchTimeout)
	defer cancel()

	report, err := orc.ExecuteFull(runCtx, query)
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("RESEARCH COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("\n%s\n\n%s\n", report.Title, report.Content)

	reportFilename := fmt.Sprintf("report_%d.md", time.Now().Unix())
	if err := os.WriteFile(reportFilename, []byte(report.Content), 0644); err != nil {
		slog.Warn("Failed to save report locally", "error", err)
	} else {
		slog.Info("Saved report", "filename", reportFilename)
	}

	return nil
}
