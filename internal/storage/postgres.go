package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moltpulse/moltpulse/internal/trace"
)

// queryExecutor is the subset of pgxpool.Pool the store needs; pgxmock
// satisfies it in tests.
type queryExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTraceStore persists traces in a runs table with the full document
// as JSONB plus indexed summary columns.
type PostgresTraceStore struct {
	db queryExecutor
}

// NewPostgresTraceStore wraps an existing connection pool.
func NewPostgresTraceStore(db queryExecutor) *PostgresTraceStore {
	return &PostgresTraceStore{db: db}
}

// Schema returns the DDL the store expects. Applied by deployment tooling,
// not at runtime.
func Schema() string {
	return `CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	profile     TEXT NOT NULL,
	report_type TEXT NOT NULL,
	depth       TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	trace       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);`
}

const saveTraceSQL = `INSERT INTO runs (run_id, domain, profile, report_type, depth, started_at, duration_ms, trace)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO UPDATE SET duration_ms = EXCLUDED.duration_ms, trace = EXCLUDED.trace`

// SaveTrace upserts the trace document.
func (s *PostgresTraceStore) SaveTrace(ctx context.Context, rt *trace.RunTrace) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("encoding trace %s: %w", rt.RunID, err)
	}
	_, err = s.db.Exec(ctx, saveTraceSQL,
		rt.RunID, rt.Domain, rt.Profile, rt.ReportType, rt.Depth,
		rt.StartedAt, rt.DurationMS, data)
	if err != nil {
		return fmt.Errorf("saving trace %s: %w", rt.RunID, err)
	}
	return nil
}

const getTraceSQL = `SELECT trace FROM runs WHERE run_id = $1`

// GetTrace loads one trace document by run ID.
func (s *PostgresTraceStore) GetTrace(ctx context.Context, runID string) (*trace.RunTrace, error) {
	var data []byte
	err := s.db.QueryRow(ctx, getTraceSQL, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading trace %s: %w", runID, err)
	}
	var rt trace.RunTrace
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("decoding trace %s: %w", runID, err)
	}
	return &rt, nil
}

const listRunsSQL = `SELECT run_id, domain, profile, report_type, depth, started_at, duration_ms
FROM runs ORDER BY started_at DESC LIMIT $1`

// ListRuns returns summaries of the most recent runs, newest first.
func (s *PostgresTraceStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.Domain, &rs.Profile, &rs.ReportType,
			&rs.Depth, &rs.StartedAt, &rs.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		summaries = append(summaries, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return summaries, nil
}
