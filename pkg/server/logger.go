package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-agent/pkg/database"
)

// DBLogHandler is a slog.Handler that writes records to the research_logs
// table, keyed by query id, so pipeline progress is auditable per query.
type DBLogHandler struct {
	DB      *database.PostgresDB
	QueryID uuid.UUID
}

func NewDBLogHandler(db *database.PostgresDB, queryID uuid.UUID) *DBLogHandler {
	return &DBLogHandler{
		DB:      db,
		QueryID: queryID,
	}
}

// NewQueryLogger builds the per-query logger handed to the orchestrator's
// LoggerFor hook.
func NewQueryLogger(db *database.PostgresDB, queryID uuid.UUID) *slog.Logger {
	return slog.New(NewDBLogHandler(db, queryID))
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true // Log everything
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (query_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	// Background context so log rows persist even if the request context is
	// already canceled.
	_, err = h.DB.Pool.Exec(context.Background(), query, h.QueryID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attribute accumulation is not needed for per-query log rows; record
	// attributes are captured in Handle.
	return h
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	return h
}

// LogEntry is one structured log row for a query.
type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// GetLogs returns the persisted log rows for a query in insertion order.
func GetLogs(ctx context.Context, db *database.PostgresDB, queryID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE query_id = $1
		ORDER BY id ASC
	`
	rows, err := db.Pool.Query(ctx, query, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
