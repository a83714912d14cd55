package pipeline

import "context"

// Step names, also used as keys in ResearchState.StepErrors and as the
// agent_type tag on persisted intermediate results.
const (
	StepWebSearch         = "web_search"
	StepDocumentRetrieval = "document_retrieval"
	StepAnalysis          = "analysis"
	StepWriteReport       = "write_report"
)

// Step is one stage of the fixed research pipeline. Execute consumes the
// state produced by the prior step and returns it with this step's fields
// populated. A returned error is recorded by the orchestrator and later
// steps still run with the input state unchanged (degraded continuation).
type Step interface {
	Name() string
	Execute(ctx context.Context, state ResearchState) (ResearchState, error)
}
