package agents

import (
	"context"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

// Retriever returns the chunks most similar to a query from the vector index.
type Retriever interface {
	Query(ctx context.Context, query string, topK int) ([]pipeline.Document, error)
}

// DocumentRetrieval queries the vector index with the original research
// question and stores the retrieved chunks on the state.
type DocumentRetrieval struct {
	Index Retriever
	TopK  int
}

func NewDocumentRetrieval(index Retriever, topK int) *DocumentRetrieval {
	if topK <= 0 {
		topK = 5
	}
	return &DocumentRetrieval{Index: index, TopK: topK}
}

func (s *DocumentRetrieval) Name() string { return pipeline.StepDocumentRetrieval }

func (s *DocumentRetrieval) Execute(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
	docs, err := s.Index.Query(ctx, state.Query, s.TopK)
	if err != nil {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: err}
	}
	state.Documents = docs
	return state, nil
}
