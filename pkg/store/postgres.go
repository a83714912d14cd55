package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/pipeline"
)

// foreignKeyViolation is the Postgres error code raised when a result or
// report references a query id that was never created.
const foreignKeyViolation = "23503"

// Postgres persists the query lifecycle in the research_queries,
// research_results and research_reports tables.
type Postgres struct {
	db *database.PostgresDB
}

func NewPostgres(db *database.PostgresDB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Create(ctx context.Context, queryID uuid.UUID, query string) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO research_queries (id, query, status) VALUES ($1, $2, $3)`,
		queryID, query, pipeline.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, queryID uuid.UUID, status pipeline.Status) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE research_queries SET status = $2, updated_at = NOW() WHERE id = $1`,
		queryID, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveResult(ctx context.Context, queryID uuid.UUID, result pipeline.StepResult) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO research_results (query_id, agent_type, title, content, source) VALUES ($1, $2, $3, $4, $5)`,
		queryID, result.Step, result.Title, result.Content, result.Source)
	if err != nil {
		if isForeignKeyViolation(err) {
			return pipeline.ErrNotFound
		}
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (p *Postgres) SaveReport(ctx context.Context, queryID uuid.UUID, report pipeline.Report) error {
	metadataJSON, err := json.Marshal(report.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal report metadata: %w", err)
	}

	_, err = p.db.Pool.Exec(ctx, `
		INSERT INTO research_reports (query_id, title, content, summary, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (query_id) DO UPDATE
		SET title = EXCLUDED.title, content = EXCLUDED.content,
		    summary = EXCLUDED.summary, metadata = EXCLUDED.metadata
	`, queryID, report.Title, report.Content, report.Summary, metadataJSON)
	if err != nil {
		if isForeignKeyViolation(err) {
			return pipeline.ErrNotFound
		}
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (p *Postgres) GetStatus(ctx context.Context, queryID uuid.UUID) (pipeline.Status, error) {
	var status pipeline.Status
	err := p.db.Pool.QueryRow(ctx,
		`SELECT status FROM research_queries WHERE id = $1`, queryID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", pipeline.ErrNotFound
		}
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	return status, nil
}

func (p *Postgres) GetReport(ctx context.Context, queryID uuid.UUID) (pipeline.Report, error) {
	var report pipeline.Report
	var metadataJSON []byte

	err := p.db.Pool.QueryRow(ctx,
		`SELECT title, content, summary, metadata FROM research_reports WHERE query_id = $1`,
		queryID).Scan(&report.Title, &report.Content, &report.Summary, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish an unknown id from a report that just isn't there yet.
			if _, statusErr := p.GetStatus(ctx, queryID); statusErr != nil {
				return pipeline.Report{}, statusErr
			}
			return pipeline.Report{}, pipeline.ErrNotReady
		}
		return pipeline.Report{}, fmt.Errorf("failed to get report: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &report.Metadata); err != nil {
			return pipeline.Report{}, fmt.Errorf("failed to unmarshal report metadata: %w", err)
		}
	}
	return report, nil
}

// SaveState snapshots the full pipeline state into the state column. Wired to
// the orchestrator's OnStateUpdate hook so progress is visible mid-run.
func (p *Postgres) SaveState(ctx context.Context, state pipeline.ResearchState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE research_queries SET state = $2, updated_at = NOW() WHERE id = $1`,
		state.QueryID, stateJSON)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

// GetState returns the last snapshotted state, falling back to a minimal
// state when the pipeline has not reported progress yet.
func (p *Postgres) GetState(ctx context.Context, queryID uuid.UUID) (pipeline.ResearchState, error) {
	var (
		query     string
		status    pipeline.Status
		stateJSON []byte
		createdAt time.Time
	)
	err := p.db.Pool.QueryRow(ctx,
		`SELECT query, status, state, created_at FROM research_queries WHERE id = $1`,
		queryID).Scan(&query, &status, &stateJSON, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.ResearchState{}, pipeline.ErrNotFound
		}
		return pipeline.ResearchState{}, fmt.Errorf("failed to get state: %w", err)
	}

	if len(stateJSON) > 0 {
		var state pipeline.ResearchState
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return pipeline.ResearchState{}, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		// Status in the queries row is authoritative; the snapshot may lag.
		state.Status = status
		return state, nil
	}

	state := pipeline.NewState(queryID, query)
	state.Status = status
	state.CreatedAt = createdAt
	return state, nil
}

// GetResults returns the persisted intermediate results for a query.
func (p *Postgres) GetResults(ctx context.Context, queryID uuid.UUID) ([]pipeline.StepResult, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT agent_type, COALESCE(title, ''), content, COALESCE(source, '')
		 FROM research_results WHERE query_id = $1 ORDER BY created_at ASC`,
		queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []pipeline.StepResult
	for rows.Next() {
		var r pipeline.StepResult
		if err := rows.Scan(&r.Step, &r.Title, &r.Content, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
