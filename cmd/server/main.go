package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mikeboe/research-agent/pkg/agents"
	"github.com/mikeboe/research-agent/pkg/clients"
	"github.com/mikeboe/research-agent/pkg/config"
	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/embeddings"
	"github.com/mikeboe/research-agent/pkg/pipeline"
	"github.com/mikeboe/research-agent/pkg/server"
	"github.com/mikeboe/research-agent/pkg/store"
	"github.com/mikeboe/research-agent/pkg/vectorstore"
	"github.com/mikeboe/research-agent/pkg/websearch"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Load()
	ctx := context.Background()

	// Database Connection
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx, cfg.CollectionName, embeddings.Dimensions); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// External collaborators
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		log.Fatalf("Failed to init embedder: %v", err)
	}

	index, err := vectorstore.NewIndex(db.Pool, cfg.CollectionName, embedder, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to init vector index: %v", err)
	}

	llm, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, clients.ProModel)
	if err != nil {
		log.Fatalf("Failed to init LLM: %v", err)
	}

	var provider agents.SearchProvider
	if cfg.TavilyApiKey != "" {
		provider = websearch.NewTavily(cfg.TavilyApiKey)
	} else {
		slog.Warn("TAVILY_API_KEY not set, falling back to arXiv search")
		provider = websearch.NewArxiv()
	}

	// Pipeline wiring
	lifecycle := store.NewPostgres(db)
	orc := pipeline.New(lifecycle,
		agents.NewWebSearch(provider, cfg.MaxSearchResults),
		agents.NewDocumentRetrieval(index, cfg.TopK),
		agents.NewAnalysis(llm),
		agents.NewWriter(llm),
	)
	orc.StepTimeout = cfg.StepTimeout
	orc.LoggerFor = func(queryID uuid.UUID) *slog.Logger {
		return server.NewQueryLogger(db, queryID)
	}
	orc.OnStateUpdate = func(state pipeline.ResearchState) {
		if err := lifecycle.SaveState(context.Background(), state); err != nil {
			slog.Error("Failed to save state snapshot", "query_id", state.QueryID, "error", err)
		}
	}

	// Web Server Setup
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	handler := server.NewHandler(orc, lifecycle, index, db)
	handler.RegisterRoutes(r)

	slog.Info("Server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
