package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/moltpulse/moltpulse/internal/api"
	"github.com/moltpulse/moltpulse/internal/availability"
	"github.com/moltpulse/moltpulse/internal/coordinator"
	"github.com/moltpulse/moltpulse/internal/orchestrator"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/report"
	"github.com/moltpulse/moltpulse/internal/storage"
	"github.com/moltpulse/moltpulse/internal/trace"
)

type fakeRunner struct {
	lastParams orchestrator.RunParams
	result     *orchestrator.RunResult
	err        error
	statuses   []availability.Status
}

func (f *fakeRunner) Run(_ context.Context, params orchestrator.RunParams) (*orchestrator.RunResult, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) Probe() []availability.Status {
	return f.statuses
}

func newTestServer(t *testing.T, runner *fakeRunner, traces storage.TraceStore) *api.Server {
	t.Helper()
	if traces == nil {
		traces = storage.NewMemoryTraceStore()
	}
	return api.NewServer(runner, traces, zaptest.NewLogger(t))
}

func successResult() *orchestrator.RunResult {
	rep := report.Assemble(report.Meta{
		RunID:      "run-1",
		Domain:     "fintech",
		Profile:    "default",
		ReportType: "weekly",
	}, []pulse.Item{
		{ID: "n1", Type: pulse.ItemNews, Title: "t", URL: "https://a.example/1", SourceName: "s"},
	}, []pulse.Source{{Name: "s", URL: "https://s.example"}})
	return &orchestrator.RunResult{
		Report:    rep,
		Trace:     trace.NewRunTrace("run-1", "fintech", "default", "weekly", "default"),
		ReportURI: "mem://fintech/run-1/report.json",
	}
}

func TestTriggerRun(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: successResult()}
	srv := newTestServer(t, runner, nil)

	body := `{"domain":"fintech","depth":"deep","days":3,"collectors":["news"],"timeout_seconds":30}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		RunID     string `json:"run_id"`
		ReportURI string `json:"report_uri"`
		Items     int    `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Equal(t, "mem://fintech/run-1/report.json", resp.ReportURI)
	require.Equal(t, 1, resp.Items)

	require.Equal(t, "fintech", runner.lastParams.Domain)
	require.Equal(t, pulse.DepthDeep, runner.lastParams.Depth)
	require.Equal(t, 3, runner.lastParams.Days)
	require.Equal(t, []string{"news"}, runner.lastParams.Collectors)
	require.Equal(t, 30*time.Second, runner.lastParams.Timeout)
}

func TestTriggerRunValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{result: successResult()}, nil)

	for name, body := range map[string]string{
		"invalid json":   `{`,
		"missing domain": `{"profile":"default"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestTriggerRunNoCollectors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{err: coordinator.ErrNoCollectors}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"domain":"fintech"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRunAndTrace(t *testing.T) {
	t.Parallel()

	traces := storage.NewMemoryTraceStore()
	rt := trace.NewRunTrace("run-9", "fintech", "default", "weekly", "quick")
	rt.Start(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	rt.Complete(time.Date(2024, 3, 10, 12, 0, 42, 0, time.UTC))
	require.NoError(t, traces.SaveTrace(context.Background(), rt))

	srv := newTestServer(t, &fakeRunner{}, traces)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		RunID      string `json:"run_id"`
		Depth      string `json:"depth"`
		DurationMS int64  `json:"duration_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "run-9", summary.RunID)
	require.Equal(t, "quick", summary.Depth)
	require.Equal(t, int64(42000), summary.DurationMS)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-9/trace", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"run_id":"run-9"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	traces := storage.NewMemoryTraceStore()
	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, traces.SaveTrace(context.Background(), trace.NewRunTrace(id, "fintech", "default", "weekly", "default")))
	}
	srv := newTestServer(t, &fakeRunner{}, traces)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Runs []storage.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	require.Equal(t, "run-2", resp.Runs[0].RunID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=zz", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCollectors(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{statuses: []availability.Status{
		{Collector: "news", Type: "news", Available: true, KeyInUse: "NEWSDATA_API_KEY"},
		{Collector: "social", Type: "social", Available: false, MissingKeys: []string{"XAI_API_KEY"}},
	}}
	srv := newTestServer(t, runner, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/collectors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Collectors []availability.Status `json:"collectors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Collectors, 2)
	require.True(t, resp.Collectors[0].Available)
	require.Equal(t, []string{"XAI_API_KEY"}, resp.Collectors[1].MissingKeys)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
