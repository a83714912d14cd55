package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

type memoryEntry struct {
	query   string
	status  pipeline.Status
	history []pipeline.Status
	results []pipeline.StepResult
	report  *pipeline.Report
}

// Memory is an in-memory lifecycle store used by the CLI and tests. Safe for
// concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]*memoryEntry)}
}

func (m *Memory) Create(ctx context.Context, queryID uuid.UUID, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[queryID] = &memoryEntry{
		query:   query,
		status:  pipeline.StatusPending,
		history: []pipeline.Status{pipeline.StatusPending},
	}
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, queryID uuid.UUID, status pipeline.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return pipeline.ErrNotFound
	}
	entry.status = status
	entry.history = append(entry.history, status)
	return nil
}

func (m *Memory) SaveResult(ctx context.Context, queryID uuid.UUID, result pipeline.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return pipeline.ErrNotFound
	}
	entry.results = append(entry.results, result)
	return nil
}

func (m *Memory) SaveReport(ctx context.Context, queryID uuid.UUID, report pipeline.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return pipeline.ErrNotFound
	}
	entry.report = &report
	return nil
}

func (m *Memory) GetStatus(ctx context.Context, queryID uuid.UUID) (pipeline.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return "", pipeline.ErrNotFound
	}
	return entry.status, nil
}

func (m *Memory) GetReport(ctx context.Context, queryID uuid.UUID) (pipeline.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return pipeline.Report{}, pipeline.ErrNotFound
	}
	if entry.report == nil {
		return pipeline.Report{}, pipeline.ErrNotReady
	}
	return *entry.report, nil
}

// Results returns the persisted intermediate results for a query.
func (m *Memory) Results(queryID uuid.UUID) []pipeline.StepResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return nil
	}
	out := make([]pipeline.StepResult, len(entry.results))
	copy(out, entry.results)
	return out
}

// StatusHistory returns every status the query has been through, in order.
func (m *Memory) StatusHistory(queryID uuid.UUID) []pipeline.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[queryID]
	if !ok {
		return nil
	}
	out := make([]pipeline.Status, len(entry.history))
	copy(out, entry.history)
	return out
}
