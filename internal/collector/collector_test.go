package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testRange = mustRange(
	time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
)

func mustRange(start, end time.Time) domain.TimeRange {
	tr, err := domain.NewTimeRange(start, end)
	if err != nil {
		panic(err)
	}
	return tr
}

func testConfig() *config.CollectorConfig {
	return &config.CollectorConfig{
		Timeout:         5 * time.Second,
		MaxEntries:      100,
		PrometheusQuery: "ALERTS",
		PrometheusStep:  time.Minute,
	}
}

func newSource(t *testing.T, typ domain.SourceType, endpoint string, creds map[string]string, meta map[string]any) *domain.LogSource {
	t.Helper()
	s, err := domain.NewLogSource("test-"+strings.ToLower(string(typ)), typ, endpoint, creds, meta)
	require.NoError(t, err)
	return s
}

type finder map[string]*domain.LogSource

func (f finder) FindByID(_ context.Context, id string) (*domain.LogSource, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, domain.NotFoundError("Log source", id)
}

type stubCollector struct {
	entries []*domain.LogEntry
	err     error
	connErr error
}

func (s *stubCollector) Collect(ctx context.Context, _ *domain.LogSource, _ domain.TimeRange) ([]*domain.LogEntry, error) {
	return s.entries, s.err
}

func (s *stubCollector) TestConnection(context.Context, *domain.LogSource) error {
	return s.connErr
}

func entryAt(t *testing.T, sourceID string, offset time.Duration, msg string) *domain.LogEntry {
	t.Helper()
	e, err := domain.NewLogEntry(sourceID, testRange.Start().Add(offset), domain.LevelInfo, msg, msg, nil, nil)
	require.NoError(t, err)
	return e
}

func TestRegistry_Collect(t *testing.T) {
	source := newSource(t, domain.SourceCustom, "http://logs.local", nil, nil)
	sources := finder{source.ID(): source}

	t.Run("sorts caps and tags", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxEntries = 2
		r := NewRegistry(sources, cfg, zap.NewNop())
		r.Register(domain.SourceCustom, &stubCollector{entries: []*domain.LogEntry{
			entryAt(t, source.ID(), 3*time.Minute, "third"),
			entryAt(t, source.ID(), time.Minute, "first"),
			entryAt(t, source.ID(), 2*time.Minute, "second"),
		}})

		entries, err := r.Collect(context.Background(), source.ID(), testRange)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "first", entries[0].Message())
		assert.Equal(t, "second", entries[1].Message())
		assert.True(t, entries[0].HasTag("custom"))
	})

	t.Run("unknown source", func(t *testing.T) {
		r := NewRegistry(sources, testConfig(), zap.NewNop())
		_, err := r.Collect(context.Background(), "missing", testRange)
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, `Log source with ID "missing" not found`, err.Error())
	})

	t.Run("unsupported type", func(t *testing.T) {
		r := NewRegistry(sources, testConfig(), zap.NewNop())
		_, err := r.Collect(context.Background(), source.ID(), testRange)
		assert.ErrorIs(t, err, domain.ErrUnsupportedSource)
	})

	t.Run("collector failure", func(t *testing.T) {
		r := NewRegistry(sources, testConfig(), zap.NewNop())
		boom := errors.New("connection refused")
		r.Register(domain.SourceCustom, &stubCollector{err: boom})

		_, err := r.Collect(context.Background(), source.ID(), testRange)
		assert.ErrorIs(t, err, domain.ErrCollectorFailed)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestRegistry_TestConnection(t *testing.T) {
	source := newSource(t, domain.SourceCustom, "http://logs.local", nil, nil)
	r := NewRegistry(finder{source.ID(): source}, testConfig(), zap.NewNop())

	r.Register(domain.SourceCustom, &stubCollector{})
	ok, err := r.TestConnection(context.Background(), source.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	r.Register(domain.SourceCustom, &stubCollector{connErr: errors.New("timeout")})
	ok, err = r.TestConnection(context.Background(), source.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrCollectorFailed)

	_, err = r.TestConnection(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPrometheusCollector(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/-/healthy":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/query_range":
			gotQuery = r.URL.Query().Get("query")
			assert.Equal(t, "60", r.URL.Query().Get("step"))
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "admin", user)
			assert.Equal(t, "secret", pass)
			_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[
				{"metric":{"__name__":"ALERTS","alertname":"HighCPU","instance":"web-1","severity":"critical","alertstate":"firing"},
				 "values":[[1709287200,"1"],[1709287260.5,"1"]]},
				{"metric":{"alertname":"DiskLow","severity":"warning"},"values":[[1709287320,"1"]]}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewPrometheusCollector(testConfig(), zap.NewNop())
	source := newSource(t, domain.SourcePrometheus, server.URL,
		map[string]string{"username": "admin", "password": "secret"},
		map[string]any{"query": `ALERTS{alertstate="firing"}`})

	entries, err := c.Collect(context.Background(), source, testRange)
	require.NoError(t, err)
	assert.Equal(t, `ALERTS{alertstate="firing"}`, gotQuery)
	require.Len(t, entries, 3)

	assert.Equal(t, `HighCPU{instance="web-1"}`, entries[0].Message())
	assert.Equal(t, domain.LevelFatal, entries[0].Level())
	assert.Equal(t, time.Unix(1709287200, 0).UTC(), entries[0].Timestamp())
	assert.Equal(t, 500*time.Millisecond, entries[1].Timestamp().Sub(time.Unix(1709287260, 0)))
	assert.Equal(t, "DiskLow", entries[2].Message())
	assert.Equal(t, domain.LevelWarn, entries[2].Level())
	assert.Equal(t, source.ID(), entries[2].SourceID())

	require.NoError(t, c.TestConnection(context.Background(), source))
}

func TestPrometheusCollector_QueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer server.Close()

	c := NewPrometheusCollector(testConfig(), zap.NewNop())
	_, err := c.Collect(context.Background(), newSource(t, domain.SourcePrometheus, server.URL, nil, nil), testRange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_data")
}

func TestZabbixCollector(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api_jsonrpc.php", r.URL.Path)
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// apiinfo.version sends an array
			req.Method = "apiinfo.version"
		}
		methods = append(methods, req.Method)

		switch req.Method {
		case "user.login":
			assert.Equal(t, "Admin", req.Params["username"])
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"tok123","id":1}`))
		case "event.get":
			assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
			assert.EqualValues(t, testRange.Start().Unix(), req.Params["time_from"])
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":[
				{"eventid":"11","clock":"1709287200","name":"High CPU load","severity":"4","value":"1","hosts":[{"host":"db-1"}]},
				{"eventid":"12","clock":"1709287300","name":"High CPU load","severity":"4","value":"0","hosts":[{"host":"db-1"}]},
				{"eventid":"13","clock":"bogus","name":"broken","severity":"1","value":"1"},
				{"eventid":"14","clock":"1709287400","name":"Disaster","severity":"5","value":"1"}
			]}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"6.4.0","id":3}`))
		}
	}))
	defer server.Close()

	c := NewZabbixCollector(testConfig(), zap.NewNop())
	source := newSource(t, domain.SourceZabbix, server.URL,
		map[string]string{"username": "Admin", "password": "zabbix"}, nil)

	entries, err := c.Collect(context.Background(), source, testRange)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"user.login", "event.get"}, methods)

	assert.Equal(t, "High CPU load on db-1", entries[0].Message())
	assert.Equal(t, domain.LevelError, entries[0].Level())
	assert.Equal(t, "Resolved: High CPU load on db-1", entries[1].Message())
	assert.Equal(t, domain.LevelFatal, entries[2].Level())

	require.NoError(t, c.TestConnection(context.Background(), source))
}

func TestZabbixCollector_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32602,"message":"Invalid params.","data":"Incorrect user name or password."},"id":1}`))
	}))
	defer server.Close()

	c := NewZabbixCollector(testConfig(), zap.NewNop())

	_, err := c.Collect(context.Background(), newSource(t, domain.SourceZabbix, server.URL+"/api_jsonrpc.php",
		map[string]string{"username": "Admin", "password": "wrong"}, nil), testRange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect user name or password.")

	_, err = c.Collect(context.Background(), newSource(t, domain.SourceZabbix, server.URL, nil, nil), testRange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token or username")
}

func TestZabbixLevel(t *testing.T) {
	want := []domain.LogLevel{domain.LevelDebug, domain.LevelInfo, domain.LevelWarn, domain.LevelWarn, domain.LevelError, domain.LevelFatal}
	for sev, level := range want {
		assert.Equal(t, level, zabbixLevel(sev), "severity %d", sev)
	}
	assert.Equal(t, domain.LevelInfo, zabbixLevel(9))
}

func TestHTTPCollector(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "array payload",
			body: `[{"timestamp":"2024-03-01T10:05:00Z","level":"error","message":"db timeout","host":"a"},
			        {"ts":1709287800000,"severity":"warning","msg":"slow query"},
			        {"timestamp":"2024-03-01T12:00:00Z","message":"outside range"},
			        {"timestamp":"2024-03-01T10:10:00Z"}]`,
			want: []string{"db timeout", "slow query"},
		},
		{
			name: "wrapped payload",
			body: `{"logs":[{"time":"2024-03-01T10:20:00.123Z","level":"INFO","message":"ok"}]}`,
			want: []string{"ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "2024-03-01T10:00:00Z", r.URL.Query().Get("start"))
				assert.Equal(t, "2024-03-01T11:00:00Z", r.URL.Query().Get("end"))
				assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewHTTPCollector(testConfig(), zap.NewNop())
			source := newSource(t, domain.SourceCustom, server.URL+"/logs", map[string]string{"token": "abc"}, nil)
			entries, err := c.Collect(context.Background(), source, testRange)
			require.NoError(t, err)

			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Message()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPCollector_FieldsBecomeMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"timestamp":"2024-03-01T10:05:00Z","level":"error","message":"db timeout","host":"a","retries":3}]`))
	}))
	defer server.Close()

	c := NewHTTPCollector(testConfig(), zap.NewNop())
	entries, err := c.Collect(context.Background(), newSource(t, domain.SourceCustom, server.URL, nil, nil), testRange)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	meta := entries[0].Metadata()
	assert.Equal(t, "a", meta["host"])
	assert.Equal(t, float64(3), meta["retries"])
	assert.Equal(t, "custom", meta["collector"])
	assert.Equal(t, domain.LevelError, entries[0].Level())
}

func TestFileCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	content := strings.Join([]string{
		"orphan line before any timestamp",
		"2024-03-01T09:00:00Z ERROR too early",
		"  continuation of too early",
		"2024-03-01T10:01:00Z ERROR connection refused",
		"\tat db.Connect(db.go:42)",
		`{"timestamp":"2024-03-01T10:02:00Z","level":"warn","msg":"retrying","attempt":2}`,
		"",
		"2024-03-01T10:03:00Z [INFO] recovered",
		"2024-03-01T10:04:00Z plain message without level",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c := NewFileCollector(zap.NewNop())
	source := newSource(t, domain.SourceFile, path, nil, nil)
	entries, err := c.Collect(context.Background(), source, testRange)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	assert.Equal(t, "orphan line before any timestamp", entries[0].Message())
	assert.Equal(t, testRange.End(), entries[0].Timestamp())

	assert.Equal(t, "connection refused", entries[1].Message())
	assert.Equal(t, domain.LevelError, entries[1].Level())

	assert.Equal(t, "at db.Connect(db.go:42)", entries[2].Message())
	assert.Equal(t, entries[1].Timestamp(), entries[2].Timestamp())

	assert.Equal(t, "retrying", entries[3].Message())
	assert.Equal(t, domain.LevelWarn, entries[3].Level())
	assert.Equal(t, float64(2), entries[3].Metadata()["attempt"])

	assert.Equal(t, "recovered", entries[4].Message())
	assert.Equal(t, domain.LevelInfo, entries[4].Level())

	assert.Equal(t, "plain message without level", entries[5].Message())

	require.NoError(t, c.TestConnection(context.Background(), source))
}

func TestFileCollector_MissingFile(t *testing.T) {
	c := NewFileCollector(zap.NewNop())
	source := newSource(t, domain.SourceFile, filepath.Join(t.TempDir(), "missing.log"), nil, nil)

	_, err := c.Collect(context.Background(), source, testRange)
	assert.Error(t, err)
	assert.Error(t, c.TestConnection(context.Background(), source))
}

func TestParseTextRecord(t *testing.T) {
	tests := []struct {
		line    string
		level   domain.LogLevel
		message string
		stamped bool
	}{
		{"2024-03-01T10:00:00Z ERROR boom", domain.LevelError, "boom", true},
		{"2024-03-01T10:00:00.250+02:00 warning: disk", domain.LevelWarn, "disk", true},
		{"FATAL out of memory", domain.LevelFatal, "out of memory", false},
		{"12 items processed", domain.LevelInfo, "12 items processed", false},
		{"Errors are fine here", domain.LevelInfo, "Errors are fine here", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			rec := parseTextRecord(tt.line)
			assert.Equal(t, tt.level, rec.Level)
			assert.Equal(t, tt.message, rec.Message)
			assert.Equal(t, tt.stamped, !rec.Timestamp.IsZero())
		})
	}
}
