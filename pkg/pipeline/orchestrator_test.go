package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-agent/pkg/pipeline"
	"github.com/mikeboe/research-agent/pkg/store"
)

type fakeStep struct {
	name string
	fn   func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error)
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Execute(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
	return s.fn(ctx, state)
}

func searchStep(results []pipeline.SearchResult) *fakeStep {
	return &fakeStep{name: pipeline.StepWebSearch, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		state.SearchResults = results
		return state, nil
	}}
}

func documentsStep(docs []pipeline.Document) *fakeStep {
	return &fakeStep{name: pipeline.StepDocumentRetrieval, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		state.Documents = docs
		return state, nil
	}}
}

func analysisStep(analysis string) *fakeStep {
	return &fakeStep{name: pipeline.StepAnalysis, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		state.Analysis = analysis
		return state, nil
	}}
}

func writerStep(content string) *fakeStep {
	return &fakeStep{name: pipeline.StepWriteReport, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		state.Report = &pipeline.Report{
			Title:   "Research Report: " + state.Query,
			Content: content,
		}
		return state, nil
	}}
}

func failingStep(name string, err error) *fakeStep {
	return &fakeStep{name: name, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		return state, err
	}}
}

// stateRecorder captures the latest state snapshot via OnStateUpdate.
type stateRecorder struct {
	mu    sync.Mutex
	state pipeline.ResearchState
}

func (r *stateRecorder) record(state pipeline.ResearchState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *stateRecorder) latest() pipeline.ResearchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func newOrchestrator(mem *store.Memory, steps ...pipeline.Step) (*pipeline.Orchestrator, *stateRecorder) {
	orc := pipeline.New(mem, steps...)
	orc.PollEvery = 5 * time.Millisecond
	rec := &stateRecorder{}
	orc.OnStateUpdate = rec.record
	return orc, rec
}

func waitTerminal(t *testing.T, orc *pipeline.Orchestrator, queryID uuid.UUID) pipeline.Status {
	t.Helper()
	var status pipeline.Status
	require.Eventually(t, func() bool {
		s, err := orc.GetStatus(context.Background(), queryID)
		if err != nil {
			return false
		}
		status = s
		return status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return status
}

func TestPipelineAllStepsSucceed(t *testing.T) {
	mem := store.NewMemory()
	synthesis := strings.Repeat("entanglement is a correlation between particles ", 25)
	orc, rec := newOrchestrator(mem,
		searchStep([]pipeline.SearchResult{
			{Title: "Entanglement explained", URL: "https://example.com/1", Snippet: "Quantum entanglement links particle states."},
			{Title: "Bell tests", URL: "https://example.com/2", Snippet: "Experiments confirm nonlocal correlations."},
			{Title: "EPR paradox", URL: "https://example.com/3", Snippet: "Einstein questioned completeness of QM."},
		}),
		documentsStep([]pipeline.Document{
			{Content: "Entangled pairs share a joint quantum state.", Metadata: map[string]interface{}{"source": "doc1"}},
			{Content: "Measurement outcomes are correlated beyond classical limits.", Metadata: map[string]interface{}{"source": "doc2"}},
		}),
		analysisStep(synthesis),
		writerStep("Quantum entanglement is a physical phenomenon..."),
	)

	queryID, err := orc.Submit(context.Background(), "What is quantum entanglement?")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusCompleted, status)

	report, err := orc.GetReport(context.Background(), queryID)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Content)

	final := rec.latest()
	assert.Empty(t, final.StepErrors)
	assert.Len(t, final.SearchResults, 3)
	assert.Len(t, final.Documents, 2)
	assert.Equal(t, synthesis, final.Analysis)

	// Intermediate results are persisted tagged with their producing step.
	results := mem.Results(queryID)
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Step]++
	}
	assert.Equal(t, 3, counts[pipeline.StepWebSearch])
	assert.Equal(t, 2, counts[pipeline.StepDocumentRetrieval])
	assert.Equal(t, 1, counts[pipeline.StepAnalysis])
}

func TestStatusMonotonicTransitions(t *testing.T) {
	mem := store.NewMemory()
	orc, _ := newOrchestrator(mem,
		searchStep(nil),
		documentsStep(nil),
		analysisStep("nothing found"),
		writerStep("best effort"),
	)

	queryID, err := orc.Submit(context.Background(), "anything")
	require.NoError(t, err)
	waitTerminal(t, orc, queryID)

	history := mem.StatusHistory(queryID)
	require.Equal(t, []pipeline.Status{
		pipeline.StatusPending,
		pipeline.StatusRunning,
		pipeline.StatusCompleted,
	}, history)
}

// Degraded continuation is deliberate: a failed search must not block the
// later steps from producing a best-effort report. A fail-fast alternative
// would be defensible but is not what this pipeline does.
func TestWebSearchFailureContinuesDegraded(t *testing.T) {
	mem := store.NewMemory()
	orc, rec := newOrchestrator(mem,
		failingStep(pipeline.StepWebSearch, &pipeline.ProviderError{Step: pipeline.StepWebSearch, Err: errors.New("quota exceeded")}),
		documentsStep([]pipeline.Document{{Content: "still retrieved"}}),
		analysisStep("degraded synthesis"),
		writerStep("report from documents only"),
	)

	queryID, err := orc.Submit(context.Background(), "degraded run")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusCompleted, status)

	final := rec.latest()
	assert.Contains(t, final.StepErrors, pipeline.StepWebSearch)
	assert.Contains(t, final.StepErrors[pipeline.StepWebSearch], "quota exceeded")
	assert.Empty(t, final.SearchResults)
	assert.NotNil(t, final.Report)
}

func TestDocumentRetrievalFailureContinuesDegraded(t *testing.T) {
	mem := store.NewMemory()
	orc, rec := newOrchestrator(mem,
		searchStep([]pipeline.SearchResult{{Title: "hit", Snippet: "snippet"}}),
		failingStep(pipeline.StepDocumentRetrieval, &pipeline.ProviderError{Step: pipeline.StepDocumentRetrieval, Err: errors.New("index unavailable")}),
		analysisStep("web-only synthesis"),
		writerStep("report from web results only"),
	)

	queryID, err := orc.Submit(context.Background(), "same query, broken index")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusCompleted, status)

	final := rec.latest()
	assert.Contains(t, final.StepErrors, pipeline.StepDocumentRetrieval)
	assert.Empty(t, final.Documents)
}

func TestReportWritingFailureFailsQuery(t *testing.T) {
	mem := store.NewMemory()
	orc, rec := newOrchestrator(mem,
		searchStep([]pipeline.SearchResult{{Title: "hit", Snippet: "snippet"}}),
		documentsStep([]pipeline.Document{{Content: "doc"}}),
		analysisStep("fine synthesis"),
		failingStep(pipeline.StepWriteReport, errors.New("llm timeout")),
	)

	queryID, err := orc.Submit(context.Background(), "writer breaks")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusFailed, status)

	final := rec.latest()
	assert.Nil(t, final.Report)
	assert.Contains(t, final.StepErrors, pipeline.StepWriteReport)

	_, err = orc.GetReport(context.Background(), queryID)
	assert.ErrorIs(t, err, pipeline.ErrNotReady)

	// Intermediate results are persisted even for failed queries.
	assert.NotEmpty(t, mem.Results(queryID))
}

func TestStepPanicIsIsolated(t *testing.T) {
	mem := store.NewMemory()
	panicking := &fakeStep{name: pipeline.StepAnalysis, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		panic("nil dereference in provider client")
	}}
	orc, rec := newOrchestrator(mem,
		searchStep([]pipeline.SearchResult{{Title: "hit", Snippet: "snippet"}}),
		documentsStep(nil),
		panicking,
		writerStep("report despite panic"),
	)

	queryID, err := orc.Submit(context.Background(), "panic run")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusCompleted, status)

	final := rec.latest()
	assert.Contains(t, final.StepErrors[pipeline.StepAnalysis], "panic")
	assert.Empty(t, final.Analysis)
}

func TestStepTimeoutRecordedAsFailure(t *testing.T) {
	mem := store.NewMemory()
	slow := &fakeStep{name: pipeline.StepWebSearch, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(time.Second):
			return state, nil
		}
	}}
	orc, rec := newOrchestrator(mem,
		slow,
		documentsStep(nil),
		analysisStep("late synthesis"),
		writerStep("report"),
	)
	orc.StepTimeout = 20 * time.Millisecond

	queryID, err := orc.Submit(context.Background(), "slow provider")
	require.NoError(t, err)

	status := waitTerminal(t, orc, queryID)
	assert.Equal(t, pipeline.StatusCompleted, status)

	final := rec.latest()
	assert.Contains(t, final.StepErrors[pipeline.StepWebSearch], context.DeadlineExceeded.Error())
}

func TestGetStatusUnknownID(t *testing.T) {
	orc, _ := newOrchestrator(store.NewMemory())

	_, err := orc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pipeline.ErrNotFound)

	_, err = orc.GetReport(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestGetReportBeforeCompletion(t *testing.T) {
	mem := store.NewMemory()
	release := make(chan struct{})
	blocked := &fakeStep{name: pipeline.StepWebSearch, fn: func(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
		<-release
		return state, nil
	}}
	orc, _ := newOrchestrator(mem, blocked, writerStep("report"))

	queryID, err := orc.Submit(context.Background(), "still running")
	require.NoError(t, err)

	_, err = orc.GetReport(context.Background(), queryID)
	assert.ErrorIs(t, err, pipeline.ErrNotReady)

	close(release)
	waitTerminal(t, orc, queryID)
}

func TestRepeatedReadsAreIdempotent(t *testing.T) {
	mem := store.NewMemory()
	orc, _ := newOrchestrator(mem,
		searchStep(nil),
		documentsStep(nil),
		analysisStep("synthesis"),
		writerStep("stable report"),
	)

	queryID, err := orc.Submit(context.Background(), "read twice")
	require.NoError(t, err)
	waitTerminal(t, orc, queryID)

	first, err := orc.GetReport(context.Background(), queryID)
	require.NoError(t, err)
	second, err := orc.GetReport(context.Background(), queryID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	s1, err := orc.GetStatus(context.Background(), queryID)
	require.NoError(t, err)
	s2, err := orc.GetStatus(context.Background(), queryID)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestResubmissionCreatesFreshQuery(t *testing.T) {
	mem := store.NewMemory()
	orc, _ := newOrchestrator(mem,
		searchStep(nil),
		documentsStep(nil),
		analysisStep("synthesis"),
		writerStep("report"),
	)

	first, err := orc.Submit(context.Background(), "same text")
	require.NoError(t, err)
	second, err := orc.Submit(context.Background(), "same text")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	waitTerminal(t, orc, first)
	waitTerminal(t, orc, second)
}

func TestExecuteFullBlocksUntilReport(t *testing.T) {
	mem := store.NewMemory()
	orc, _ := newOrchestrator(mem,
		searchStep(nil),
		documentsStep(nil),
		analysisStep("synthesis"),
		writerStep("synchronous report"),
	)

	report, err := orc.ExecuteFull(context.Background(), "one shot")
	require.NoError(t, err)
	assert.Equal(t, "synchronous report", report.Content)
}

func TestExecuteFullReturnsErrorOnFailure(t *testing.T) {
	mem := store.NewMemory()
	orc, _ := newOrchestrator(mem,
		searchStep(nil),
		documentsStep(nil),
		analysisStep("synthesis"),
		failingStep(pipeline.StepWriteReport, errors.New("no report")),
	)

	_, err := orc.ExecuteFull(context.Background(), "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a report")
}
