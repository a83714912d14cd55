package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks where a query is in its lifecycle. Transitions only move
// forward: pending -> running -> completed or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Document is a chunk retrieved from the vector index.
type Document struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score,omitempty"`
}

// Report is the final structured output of a research run.
type Report struct {
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	Summary  string                 `json:"summary,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StepResult is one intermediate result tagged with the step that produced
// it, persisted so callers can audit partial progress.
type StepResult struct {
	Step    string `json:"step"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// ResearchState is the value threaded through the pipeline. Each step fills
// in exactly its own fields and leaves everything set by earlier steps
// untouched; StepErrors only ever grows.
type ResearchState struct {
	QueryID       uuid.UUID         `json:"query_id"`
	Query         string            `json:"query"`
	SearchResults []SearchResult    `json:"web_results"`
	Documents     []Document        `json:"document_results"`
	Analysis      string            `json:"analysis,omitempty"`
	Report        *Report           `json:"final_report,omitempty"`
	StepErrors    map[string]string `json:"step_errors,omitempty"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"timestamp"`
}

// NewState builds the initial state for a freshly submitted query.
func NewState(queryID uuid.UUID, query string) ResearchState {
	return ResearchState{
		QueryID:       queryID,
		Query:         query,
		SearchResults: []SearchResult{},
		Documents:     []Document{},
		StepErrors:    map[string]string{},
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}
