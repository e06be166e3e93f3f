package storage

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/moltpulse/moltpulse/internal/trace"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleTrace() *trace.RunTrace {
	rt := trace.NewRunTrace("run-1", "advertising", "default", "daily_brief", "quick")
	rt.Start(time.Date(2024, 1, 7, 6, 0, 0, 0, time.UTC))
	rt.Complete(time.Date(2024, 1, 7, 6, 0, 30, 0, time.UTC))
	return rt
}

func TestPostgresSaveTrace(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	rt := sampleTrace()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(rt.RunID, rt.Domain, rt.Profile, rt.ReportType, rt.Depth,
			rt.StartedAt, rt.DurationMS, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresTraceStore(mock)
	require.NoError(t, store.SaveTrace(context.Background(), rt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTrace(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery("SELECT trace FROM runs").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"trace"}).
			AddRow([]byte(`{"run_id":"run-1","domain":"advertising","profile":"default","report_type":"daily_brief","depth":"quick","duration_ms":30000}`)))

	store := NewPostgresTraceStore(mock)
	rt, err := store.GetTrace(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", rt.RunID)
	require.EqualValues(t, 30000, rt.DurationMS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTrace_NotFound(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery("SELECT trace FROM runs").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"trace"}))

	store := NewPostgresTraceStore(mock)
	_, err := store.GetTrace(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresListRuns(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 1, 7, 6, 0, 0, 0, time.UTC)
	mock := newMock(t)
	mock.ExpectQuery("SELECT run_id, domain, profile, report_type, depth, started_at, duration_ms").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "domain", "profile", "report_type", "depth", "started_at", "duration_ms",
		}).AddRow("run-2", "advertising", "default", "daily_brief", "deep", started, int64(12000)).
			AddRow("run-1", "advertising", "default", "daily_brief", "quick", started.Add(-time.Hour), int64(30000)))

	store := NewPostgresTraceStore(mock)
	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].RunID)
	require.NoError(t, mock.ExpectationsWereMet())
}
