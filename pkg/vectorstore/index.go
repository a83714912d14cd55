package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikeboe/research-agent/pkg/pipeline"
	"github.com/mikeboe/research-agent/pkg/splitter"
)

// Embedder turns text into embedding vectors. Satisfied by
// embeddings.GoogleEmbedder.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector index consumed by the document retrieval step and the
// document-indexing API surface: Query embeds the query text and runs a
// similarity search, IndexTexts chunks, embeds and stores raw texts.
type Index struct {
	store    *PGVectorStore
	embedder Embedder
	splitter *splitter.TextSplitter
}

func NewIndex(pool *pgxpool.Pool, tableName string, embedder Embedder, chunkSize, chunkOverlap int) (*Index, error) {
	store, err := NewPGVectorStore(pool, tableName)
	if err != nil {
		return nil, err
	}
	return &Index{
		store:    store,
		embedder: embedder,
		splitter: splitter.NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap),
	}, nil
}

// Query returns the topK stored chunks most similar to the query text.
func (ix *Index) Query(ctx context.Context, query string, topK int) ([]pipeline.Document, error) {
	embedding, err := ix.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := ix.store.SimilaritySearch(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}

	docs := make([]pipeline.Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, pipeline.Document{
			Content:  hit.Document.Content,
			Metadata: hit.Document.Metadata,
			Score:    hit.Score,
		})
	}
	return docs, nil
}

// IndexTexts chunks each text, embeds the chunks and stores them, returning
// the generated document ids. metadatas is positional and may be shorter than
// texts; missing entries get empty metadata.
func (ix *Index) IndexTexts(ctx context.Context, texts []string, metadatas []map[string]interface{}) ([]string, error) {
	var docs []Document

	for i, text := range texts {
		chunks, err := ix.splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("failed to split text %d: %w", i, err)
		}

		embeddings, err := ix.embedder.EmbedTexts(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks of text %d: %w", i, err)
		}

		var metadata map[string]interface{}
		if i < len(metadatas) {
			metadata = metadatas[i]
		}

		for j, chunk := range chunks {
			docs = append(docs, Document{
				Content:   chunk,
				Metadata:  metadata,
				Embedding: embeddings[j],
			})
		}
	}

	if len(docs) == 0 {
		return []string{}, nil
	}
	return ix.store.AddDocuments(ctx, docs)
}
