package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/scheduler"
	"github.com/entrhq/mnemo/pkg/metrics"
	"github.com/entrhq/mnemo/pkg/oracle"
	"github.com/entrhq/mnemo/pkg/types"
)

func newTestService(t *testing.T, backend oracle.Backend) *memory.Service {
	t.Helper()
	svc, err := memory.New(memory.Options{
		Root:                t.TempDir(),
		CaptureEnabled:      true,
		DistillationEnabled: true,
		TimesPerDay:         4,
		Engine:              consolidation.Config{RetentionDays: 5},
		Oracle:              oracle.NewClient(backend),
		TickerFactory:       func(d time.Duration) scheduler.Ticker { return scheduler.NewManualTicker(d) },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func tierBackend() oracle.Backend {
	return oracle.NewMockBackend(func(_ context.Context, system, _ string) (string, error) {
		if system == consolidation.SystemPromptFor(types.TierEpisodic) {
			return "## Keys\n- rotated the api key", nil
		}
		return "- api keys rotate with vault", nil
	})
}

type harness struct {
	t       *testing.T
	svc     *memory.Service
	metrics *metrics.Manager
	router  http.Handler
}

func newHarness(t *testing.T, backend oracle.Backend) *harness {
	svc := newTestService(t, backend)
	m := metrics.NewManager(metrics.DefaultConfig())
	return &harness{t: t, svc: svc, metrics: m, router: NewRouter(svc, m)}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, tierBackend())
	w := h.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[healthResponse](t, w)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, h.svc.Root(), body.Root)
	assert.False(t, body.Running)
}

func TestCaptureRunAndRead(t *testing.T) {
	h := newHarness(t, tierBackend())

	for _, turn := range []string{
		`{"role":"user","text":"rotate the api key"}`,
		`{"role":"assistant","text":"done <system-reminder>secret</system-reminder>"}`,
		`{"role":"tool","tool_name":"Bash","tool_target":"vault rotate"}`,
	} {
		w := h.do(http.MethodPost, "/sessions/abc123/turns", turn)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	stats := decode[StatsResponse](t, h.do(http.MethodGet, "/stats", ""))
	assert.Equal(t, 1, stats.Working.Files)
	assert.Equal(t, 4, stats.Working.Lines)
	assert.Equal(t, "abc123", stats.Session)
	assert.True(t, stats.Capture)
	assert.Equal(t, 4, stats.Schedule.TimesPerDay)

	w := h.do(http.MethodPost, "/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	run := decode[RunResponse](t, w)
	assert.True(t, run.EpisodicUpdated)
	assert.True(t, run.SemanticUpdated)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, []string{}, run.Purged)

	w = h.do(http.MethodGet, "/episodic", "")
	assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "## Keys\n- rotated the api key", w.Body.String())

	w = h.do(http.MethodGet, "/semantic?part=mutable", "")
	assert.Equal(t, "- api keys rotate with vault", w.Body.String())

	sem := decode[map[string]any](t, h.do(http.MethodGet, "/semantic?format=json", ""))
	assert.Equal(t, true, sem["has_sentinel"])
	assert.Contains(t, sem["immutable"], "# Semantic Memory")

	w = h.do(http.MethodGet, "/semantic?part=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppendTurn_Validation(t *testing.T) {
	h := newHarness(t, tierBackend())
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "{"},
		{"unknown role", `{"role":"system","text":"x"}`},
		{"unknown field", `{"role":"user","txt":"x"}`},
		{"tool without name", `{"role":"tool","tool_target":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/sessions/s1/turns", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[map[string]string](t, w), "error")
		})
	}
	assert.Equal(t, 0, h.svc.Snapshot().Working.Files)
}

func TestCloseSession(t *testing.T) {
	h := newHarness(t, tierBackend())
	require.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/sessions/s1/turns", `{"role":"user","text":"hi"}`).Code)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/sessions/other/close", "").Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/sessions/s1/close", "").Code)
	assert.Empty(t, h.svc.SessionID())
}

func TestSchedule(t *testing.T) {
	h := newHarness(t, tierBackend())

	status := decode[ScheduleStatus](t, h.do(http.MethodGet, "/schedule", ""))
	assert.True(t, status.Enabled)
	assert.False(t, status.Active)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 12}, status.Allowed)

	w := h.do(http.MethodPut, "/schedule", `{"times_per_day":50,"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	status = decode[ScheduleStatus](t, w)
	assert.True(t, status.Active)
	assert.Equal(t, 12, status.TimesPerDay, "clamped, not rejected")
	assert.Equal(t, int64(7200), status.IntervalSeconds)

	status = decode[ScheduleStatus](t, h.do(http.MethodPut, "/schedule", `{"enabled":false}`))
	assert.False(t, status.Enabled)
	assert.False(t, status.Active)
	assert.Equal(t, 12, status.TimesPerDay)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/schedule", `{"times_per_day":"often"}`).Code)
}

func TestRun_ConflictWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := oracle.NewMockBackend(func(context.Context, string, string) (string, error) {
		select {
		case <-entered:
		default:
			close(entered)
		}
		<-release
		return "", errors.New("down")
	})
	h := newHarness(t, backend)
	h.svc.Append(types.NewUserTurn("something to summarize"))

	done := make(chan int, 1)
	go func() { done <- h.do(http.MethodPost, "/run", "").Code }()
	<-entered

	w := h.do(http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, decode[RunResponse](t, w).Skipped)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, tierBackend())
	h.do(http.MethodPost, "/sessions/abcdef/turns", `{"role":"user","text":"hi"}`)
	h.do(http.MethodGet, "/stats", "")

	w := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `path="/sessions/{id}/turns"`)
	assert.Contains(t, body, `path="/stats"`)
	assert.NotContains(t, body, `path="/metrics"`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	svc := newTestService(t, tierBackend())
	w := httptest.NewRecorder()
	NewRouter(svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Lifecycle(t *testing.T) {
	svc := newTestService(t, tierBackend())
	srv := NewServer("127.0.0.1:0", svc, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
