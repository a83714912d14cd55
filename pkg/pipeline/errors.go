package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a query id was never issued by Submit.
	ErrNotFound = errors.New("research query not found")

	// ErrNotReady is returned when a report is requested before the query
	// reached completed.
	ErrNotReady = errors.New("report not yet generated")
)

// ProviderError wraps a failure from an external collaborator (search API,
// vector index, language model). It is recorded into the state's step errors
// and never aborts the pipeline.
type ProviderError struct {
	Step string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider call failed: %v", e.Step, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
