package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LifecycleStore persists the status, intermediate results and final report
// of a query so callers can poll asynchronously. Implementations must be safe
// for concurrent use; all lookups return ErrNotFound for unknown ids.
type LifecycleStore interface {
	Create(ctx context.Context, queryID uuid.UUID, query string) error
	UpdateStatus(ctx context.Context, queryID uuid.UUID, status Status) error
	SaveResult(ctx context.Context, queryID uuid.UUID, result StepResult) error
	SaveReport(ctx context.Context, queryID uuid.UUID, report Report) error
	GetStatus(ctx context.Context, queryID uuid.UUID) (Status, error)
	GetReport(ctx context.Context, queryID uuid.UUID) (Report, error)
}

// Orchestrator runs the fixed four-step research sequence over a shared
// ResearchState and manages the query lifecycle. Multiple queries may run
// concurrently; within one query the steps are strictly sequential.
type Orchestrator struct {
	Steps       []Step
	Store       LifecycleStore
	StepTimeout time.Duration
	PollEvery   time.Duration
	Logger      *slog.Logger

	// LoggerFor, when set, yields a per-query logger (e.g. one backed by the
	// research_logs table) used for the background run of that query.
	LoggerFor func(queryID uuid.UUID) *slog.Logger

	// OnStateUpdate is invoked with a snapshot of the state after every step,
	// letting the caller persist progress beyond the LifecycleStore contract.
	OnStateUpdate func(state ResearchState)
}

// New creates an orchestrator over the given store and step sequence.
func New(store LifecycleStore, steps ...Step) *Orchestrator {
	return &Orchestrator{
		Steps:       steps,
		Store:       store,
		StepTimeout: 2 * time.Minute,
		PollEvery:   200 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// Submit allocates a query id, persists the initial pending row and schedules
// the pipeline in the background. It returns immediately; callers poll
// GetStatus / GetReport with the returned id.
func (o *Orchestrator) Submit(ctx context.Context, query string) (uuid.UUID, error) {
	queryID := uuid.New()
	state := NewState(queryID, query)

	if err := o.Store.Create(ctx, queryID, query); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create query record: %w", err)
	}
	queriesTotal.Inc()

	go o.run(context.Background(), state)

	return queryID, nil
}

// GetStatus reads the current status of a query through the lifecycle store.
func (o *Orchestrator) GetStatus(ctx context.Context, queryID uuid.UUID) (Status, error) {
	return o.Store.GetStatus(ctx, queryID)
}

// GetReport returns the final report. It fails with ErrNotReady until the
// query reaches completed and with ErrNotFound for unknown ids. Reads have no
// side effects, so repeated calls return identical results.
func (o *Orchestrator) GetReport(ctx context.Context, queryID uuid.UUID) (Report, error) {
	status, err := o.Store.GetStatus(ctx, queryID)
	if err != nil {
		return Report{}, err
	}
	if status != StatusCompleted {
		return Report{}, ErrNotReady
	}
	return o.Store.GetReport(ctx, queryID)
}

// ExecuteFull is the synchronous one-shot entry point used by the CLI: it
// submits the query and blocks until the pipeline reaches a terminal status,
// returning the report or an error describing the failure.
func (o *Orchestrator) ExecuteFull(ctx context.Context, query string) (Report, error) {
	queryID, err := o.Submit(ctx, query)
	if err != nil {
		return Report{}, err
	}

	ticker := time.NewTicker(o.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Report{}, ctx.Err()
		case <-ticker.C:
		}

		status, err := o.Store.GetStatus(ctx, queryID)
		if err != nil {
			return Report{}, err
		}
		switch status {
		case StatusCompleted:
			return o.Store.GetReport(ctx, queryID)
		case StatusFailed:
			return Report{}, fmt.Errorf("research %s finished without a report", queryID)
		}
	}
}

// run executes the step sequence for one query. Step failures are recorded
// and later steps still run with the state unchanged for the failed step's
// fields: a failed search should not block the writer from producing a
// best-effort report from whatever was retrieved.
func (o *Orchestrator) run(ctx context.Context, state ResearchState) {
	logger := o.Logger
	if o.LoggerFor != nil {
		logger = o.LoggerFor(state.QueryID)
	}

	state.Status = StatusRunning
	if err := o.Store.UpdateStatus(ctx, state.QueryID, StatusRunning); err != nil {
		logger.Error("Failed to persist running status", "query_id", state.QueryID, "error", err)
	}
	o.notify(state)

	for _, step := range o.Steps {
		logger.Info("Running step", "step", step.Name(), "query_id", state.QueryID)

		start := time.Now()
		next, err := o.executeStep(ctx, step, state)
		stepDuration.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			stepFailures.WithLabelValues(step.Name()).Inc()
			logger.Error("Step failed, continuing with degraded input", "step", step.Name(), "error", err)
			state.StepErrors[step.Name()] = err.Error()
		} else {
			state = next
		}
		o.notify(state)
	}

	o.persistResults(ctx, logger, state)

	final := StatusFailed
	if state.Report != nil && state.Report.Content != "" {
		if err := o.Store.SaveReport(ctx, state.QueryID, *state.Report); err != nil {
			logger.Error("Failed to persist report", "query_id", state.QueryID, "error", err)
		} else {
			final = StatusCompleted
		}
	}

	state.Status = final
	if err := o.Store.UpdateStatus(ctx, state.QueryID, final); err != nil {
		logger.Error("Failed to persist terminal status", "query_id", state.QueryID, "error", err)
	}
	o.notify(state)
	queriesFinished.WithLabelValues(string(final)).Inc()

	logger.Info("Research finished",
		"query_id", state.QueryID,
		"status", final,
		"web_results", len(state.SearchResults),
		"documents", len(state.Documents),
		"step_errors", len(state.StepErrors))
}

// executeStep bounds the step's external call with the configured timeout and
// converts panics inside a step into ordinary step errors so the pipeline
// always reaches a terminal status.
func (o *Orchestrator) executeStep(ctx context.Context, step Step, state ResearchState) (next ResearchState, err error) {
	if o.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.StepTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			next = state
			err = fmt.Errorf("%s: panic: %v", step.Name(), r)
		}
	}()

	return step.Execute(ctx, state)
}

// persistResults writes every intermediate result regardless of final status,
// tagged with its producing step, so partial progress stays auditable.
func (o *Orchestrator) persistResults(ctx context.Context, logger *slog.Logger, state ResearchState) {
	var results []StepResult
	for _, r := range state.SearchResults {
		results = append(results, StepResult{
			Step:    StepWebSearch,
			Title:   r.Title,
			Content: r.Snippet,
			Source:  r.URL,
		})
	}
	for _, d := range state.Documents {
		source := ""
		if s, ok := d.Metadata["source"].(string); ok {
			source = s
		}
		results = append(results, StepResult{
			Step:    StepDocumentRetrieval,
			Content: d.Content,
			Source:  source,
		})
	}
	if strings.TrimSpace(state.Analysis) != "" {
		results = append(results, StepResult{
			Step:    StepAnalysis,
			Content: state.Analysis,
		})
	}

	for _, result := range results {
		if err := o.Store.SaveResult(ctx, state.QueryID, result); err != nil {
			logger.Error("Failed to persist intermediate result", "step", result.Step, "error", err)
		}
	}
}

func (o *Orchestrator) notify(state ResearchState) {
	if o.OnStateUpdate != nil {
		o.OnStateUpdate(state)
	}
}
