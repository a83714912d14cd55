package agents

import (
	"context"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

// SearchProvider returns ranked text snippets for a query. Implementations
// live in pkg/websearch and must be safe for concurrent use.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]pipeline.SearchResult, error)
}

// WebSearch queries the configured search provider with the original research
// question and stores the hits on the state.
type WebSearch struct {
	Provider   SearchProvider
	MaxResults int
}

func NewWebSearch(provider SearchProvider, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{Provider: provider, MaxResults: maxResults}
}

func (s *WebSearch) Name() string { return pipeline.StepWebSearch }

func (s *WebSearch) Execute(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
	results, err := s.Provider.Search(ctx, state.Query, s.MaxResults)
	if err != nil {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: err}
	}
	state.SearchResults = results
	return state, nil
}
