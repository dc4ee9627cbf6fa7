package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/events"
	"github.com/ai-devops/loganomaly/internal/repository"
	"github.com/ai-devops/loganomaly/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeCollector struct {
	errorCount int
	total      int
	connErr    error
}

func (f *fakeCollector) Collect(_ context.Context, sourceID string, _ domain.TimeRange) ([]*domain.LogEntry, error) {
	out := make([]*domain.LogEntry, 0, f.total)
	for i := 0; i < f.total; i++ {
		level := domain.LevelInfo
		if i < f.errorCount {
			level = domain.LevelError
		}
		e, err := domain.NewLogEntry(sourceID, base.Add(time.Duration(i)*time.Second), level,
			fmt.Sprintf("line %d", i), "", nil, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCollector) TestConnection(context.Context, string) (bool, error) {
	return f.connErr == nil, f.connErr
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, collector *fakeCollector, cfg config.ServerConfig, checks map[string]Check) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()
	sources := repository.NewMemorySourceRepository()
	sessions := repository.NewMemorySessionRepository()
	results := repository.NewMemoryResultRepository()
	entries := repository.NewMemoryEntryRepository()

	orch := service.NewOrchestrator(sources, sessions, results, collector,
		detection.NewSelector(detection.NewEngine(logger)), events.NewBus(logger),
		config.DetectionConfig{DefaultThreshold: 0.7, DefaultSensitivity: 0.5}, logger)
	reports := service.NewReportService(results, sources, logger)

	return NewRouter(Handlers{
		Health:   NewHealthHandler(logger),
		Ready:    NewReadyHandler(checks, logger),
		Sources:  NewSourceHandler(service.NewSourceService(sources, collector, logger), service.NewCollectService(sources, entries, collector, logger), reports, logger),
		Sessions: NewSessionHandler(orch, service.NewSessionService(sessions), reports, logger),
	}, cfg, logger)
}

var defaultServer = config.ServerConfig{RateLimitRPS: 1000, RateLimitBurst: 1000}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func registerActive(t *testing.T, r http.Handler, name string) service.SourceView {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/v1/sources",
		fmt.Sprintf(`{"name":%q,"type":"prometheus","endpoint":"http://%s:9090","credentials":{"token":"s3cret"}}`, name, name))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view service.SourceView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "INACTIVE", view.Status)
	assert.Equal(t, "********", view.Credentials["token"])

	w, env = do(t, r, http.MethodPost, "/api/v1/sources/"+view.ID+"/activate", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "ACTIVE", view.Status)
	return view
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, defaultServer, nil)
	w, _ := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"passing", map[string]Check{"storage": func(context.Context) error { return nil }}, http.StatusOK},
		{"failing", map[string]Check{
			"storage": func(context.Context) error { return nil },
			"ai":      func(context.Context) error { return errors.New("unreachable") },
		}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeCollector{}, defaultServer, tt.checks)
			w, _ := do(t, r, http.MethodGet, "/ready", "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, defaultServer, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, defaultServer, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sources", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, defaultServer, nil)
	do(t, r, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loganomaly_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 2}, nil)
	for i := 0; i < 2; i++ {
		w, _ := do(t, r, http.MethodGet, "/api/v1/sources", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, env := do(t, r, http.MethodGet, "/api/v1/sources", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "health sits outside the limited group")
}

func TestSourceEndpoints(t *testing.T) {
	collector := &fakeCollector{}
	r := newTestRouter(t, collector, defaultServer, nil)
	src := registerActive(t, r, "prom")

	tests := []struct {
		name, method, path, body string
		want                     int
		wantErr                  string
	}{
		{
			name: "duplicate", method: http.MethodPost, path: "/api/v1/sources",
			body: `{"name":"prom","type":"PROMETHEUS","endpoint":"http://elsewhere:9090"}`,
			want: http.StatusConflict, wantErr: `Log source with name "prom" or endpoint "http://elsewhere:9090" already exists`,
		},
		{
			name: "unknown type", method: http.MethodPost, path: "/api/v1/sources",
			body: `{"name":"x","type":"splunk","endpoint":"http://x"}`,
			want: http.StatusBadRequest, wantErr: `Unknown log source type "SPLUNK"`,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/api/v1/sources",
			body: `{"name":`, want: http.StatusBadRequest,
		},
		{
			name: "missing source", method: http.MethodGet, path: "/api/v1/sources/nope",
			want: http.StatusNotFound, wantErr: `Log source with ID "nope" not found`,
		},
		{
			name: "get", method: http.MethodGet, path: "/api/v1/sources/" + src.ID, want: http.StatusOK,
		},
		{
			name: "bad severity", method: http.MethodGet, path: "/api/v1/sources/" + src.ID + "/alerts?severity=urgent",
			want: http.StatusBadRequest,
		},
		{
			name: "alerts", method: http.MethodGet, path: "/api/v1/sources/" + src.ID + "/alerts?severity=critical",
			want: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, env.Error)
			}
		})
	}

	t.Run("list by type", func(t *testing.T) {
		_, env := do(t, r, http.MethodGet, "/api/v1/sources?type=zabbix", "")
		assert.JSONEq(t, `[]`, string(env.Data))
		_, env = do(t, r, http.MethodGet, "/api/v1/sources?type=PROMETHEUS", "")
		var views []service.SourceView
		require.NoError(t, json.Unmarshal(env.Data, &views))
		assert.Len(t, views, 1)
	})

	t.Run("failed connection marks error", func(t *testing.T) {
		collector.connErr = errors.New("dial refused")
		w, env := do(t, r, http.MethodPost, "/api/v1/sources/"+src.ID+"/test-connection", "")
		require.Equal(t, http.StatusOK, w.Code)
		var status service.ConnectionStatus
		require.NoError(t, json.Unmarshal(env.Data, &status))
		assert.False(t, status.Success)
		assert.Equal(t, "ERROR", status.Status)
	})
}

func TestCollectEndpoint(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{total: 3}, defaultServer, nil)
	src := registerActive(t, r, "prom")

	w, env := do(t, r, http.MethodPost, "/api/v1/logs/collect",
		fmt.Sprintf(`{"sourceId":%q,"startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T11:00:00Z"}`, src.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Count int                    `json:"count"`
		Logs  []service.LogEntryView `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Logs, 3)

	w, _ = do(t, r, http.MethodPost, "/api/v1/sources/"+src.ID+"/deactivate", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, env = do(t, r, http.MethodPost, "/api/v1/logs/collect",
		fmt.Sprintf(`{"sourceId":%q,"startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T11:00:00Z"}`, src.ID))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, `Log source "prom" is not active`, env.Error)
}

func TestSessionFlow(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{total: 10, errorCount: 3}, defaultServer, nil)
	src := registerActive(t, r, "prom")

	body := fmt.Sprintf(`{
		"sourceId": %q,
		"startTime": "2024-03-01T10:00:00Z",
		"endTime": "2024-03-01T11:00:00Z",
		"modelConfig": {"modelType": "statistical", "threshold": 0.7}
	}`, src.ID)
	w, env := do(t, r, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var session service.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "COMPLETED", session.Status)
	assert.Equal(t, 10, session.LogCount)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", session.TimeRange.Start)
	require.NotNil(t, session.AnalysisResultID)

	w, env = do(t, r, http.MethodGet, "/api/v1/sessions/"+session.ID+"/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	var result service.ResultView
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, *session.AnalysisResultID, result.ID)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, domain.AnomalyLLMDetected, result.Anomalies[0].Type)

	w, env = do(t, r, http.MethodGet, "/api/v1/results/"+result.ID+"/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report service.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.TotalAnomalies)
	assert.Equal(t, 1, report.HighSeverityCount)

	w, env = do(t, r, http.MethodGet, "/api/v1/dashboard?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var dash service.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.Equal(t, 10, dash.TotalAnalyzed)
	require.Len(t, dash.SourceStats, 1)
	assert.Equal(t, "prom", dash.SourceStats[0].SourceName)

	w, env = do(t, r, http.MethodGet, "/api/v1/sessions?sourceId="+src.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []service.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	_, env = do(t, r, http.MethodGet, "/api/v1/sessions?active=true", "")
	assert.JSONEq(t, `[]`, string(env.Data))

	w, env = do(t, r, http.MethodGet, "/api/v1/results/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `Analysis result with ID "missing" not found`, env.Error)
}

func TestSessionErrors(t *testing.T) {
	r := newTestRouter(t, &fakeCollector{}, defaultServer, nil)
	src := registerActive(t, r, "prom")

	tests := []struct {
		name     string
		body     string
		want     int
		wantErr  string
		withData bool
	}{
		{
			name: "unknown source",
			body: `{"sourceId":"nope","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T11:00:00Z","modelConfig":{"modelType":"STATISTICAL"}}`,
			want: http.StatusNotFound, wantErr: `Log source with ID "nope" not found`,
		},
		{
			name: "inverted range",
			body: fmt.Sprintf(`{"sourceId":%q,"startTime":"2024-03-01T11:00:00Z","endTime":"2024-03-01T10:00:00Z","modelConfig":{"modelType":"STATISTICAL"}}`, src.ID),
			want: http.StatusBadRequest, wantErr: "Start time must be before end time",
		},
		{
			name: "missing model type",
			body: fmt.Sprintf(`{"sourceId":%q,"startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T11:00:00Z","modelConfig":{}}`, src.ID),
			want: http.StatusBadRequest,
		},
		{
			name: "no logs collected",
			body: fmt.Sprintf(`{"sourceId":%q,"startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T11:00:00Z","modelConfig":{"modelType":"STATISTICAL"}}`, src.ID),
			want: http.StatusConflict, wantErr: "Anomaly detection failed: Cannot analyze with no log entries",
			withData: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.False(t, env.Success)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, env.Error)
			}
			if tt.withData {
				var session service.SessionView
				require.NoError(t, json.Unmarshal(env.Data, &session))
				assert.Equal(t, "FAILED", session.Status)
				assert.Equal(t, "Cannot analyze with no log entries", session.Error)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NotFoundError("Session", "x"), http.StatusNotFound},
		{domain.ConflictError("dup"), http.StatusConflict},
		{domain.InvalidStateError("nope"), http.StatusConflict},
		{domain.StaleVersionError("Session", "x", 1, 2), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.NotFoundError("Session", "x")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
