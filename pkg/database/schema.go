package database

import (
	"context"
	"fmt"
)

// InitSchema creates the query lifecycle tables and the vector collection.
// Safe to call on every startup.
func (db *PostgresDB) InitSchema(ctx context.Context, collection string, embeddingDim int) error {
	// 1. Research Queries Table
	queriesQuery := `
		CREATE TABLE IF NOT EXISTS research_queries (
			id UUID PRIMARY KEY,
			query TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			state JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, queriesQuery); err != nil {
		return fmt.Errorf("failed to create research_queries table: %w", err)
	}

	// 2. Intermediate Results Table (one row per result, tagged by step)
	resultsQuery := `
		CREATE TABLE IF NOT EXISTS research_results (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			query_id UUID NOT NULL REFERENCES research_queries(id) ON DELETE CASCADE,
			agent_type TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			source TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, resultsQuery); err != nil {
		return fmt.Errorf("failed to create research_results table: %w", err)
	}

	// 3. Reports Table
	reportsQuery := `
		CREATE TABLE IF NOT EXISTS research_reports (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			query_id UUID NOT NULL UNIQUE REFERENCES research_queries(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, reportsQuery); err != nil {
		return fmt.Errorf("failed to create research_reports table: %w", err)
	}

	// 4. Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS research_logs (
			id SERIAL PRIMARY KEY,
			query_id UUID NOT NULL REFERENCES research_queries(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create research_logs table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_results_query_id ON research_results(query_id)"); err != nil {
		return fmt.Errorf("failed to create index on research_results: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_logs_query_id ON research_logs(query_id)"); err != nil {
		return fmt.Errorf("failed to create index on research_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_queries_created_at ON research_queries(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on research_queries: %w", err)
	}

	// 5. Vector collection
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return fmt.Errorf("failed to ensure vector extension: %w", err)
	}
	if err := db.CreateEmbeddingsTable(ctx, collection, embeddingDim); err != nil {
		return err
	}

	return nil
}

// EnsureVectorExtension ensures the pgvector extension is installed
func (db *PostgresDB) EnsureVectorExtension(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	return err
}

// CreateEmbeddingsTable creates the embeddings table if it doesn't exist
func (db *PostgresDB) CreateEmbeddingsTable(ctx context.Context, tableName string, dimension int) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, tableName, dimension)

	_, err := db.Pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	// HNSW and IVFFlat support up to 2000 dimensions.
	// If dimensions > 2000, we skip index creation and rely on exact search (slower but works).
	if dimension <= 2000 {
		indexQuery := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)
		`, tableName, tableName)

		_, err = db.Pool.Exec(ctx, indexQuery)
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", tableName, err)
		}
	}

	return nil
}
