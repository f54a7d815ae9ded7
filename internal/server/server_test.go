package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/simm/internal/events"
	"github.com/aristath/simm/internal/metrics"
	"github.com/aristath/simm/internal/modules/runs"
	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/internal/modules/simm/params"
	"github.com/aristath/simm/internal/scheduler"
	testhelpers "github.com/aristath/simm/internal/testing"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "runs")

	table, err := params.Default()
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	calc := simm.NewCalculator(table, zerolog.Nop(), simm.WithMemo(simm.NewMemo()), simm.WithObserver(reg))
	svc := runs.NewService(runs.NewRepository(db.Conn(), zerolog.Nop()), calc, reg, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	svc.SetPublisher(bus)

	sched := scheduler.New(zerolog.Nop())
	require.NoError(t, sched.AddJob("@daily", runs.NewPurgeJob(svc, 24*time.Hour, zerolog.Nop())))

	s := New(Config{
		Log:           zerolog.Nop(),
		RunsDB:        db,
		Calculator:    calc,
		Runs:          svc,
		Metrics:       reg,
		Scheduler:     sched,
		Events:        bus,
		ParamsVersion: table.Version,
		Port:          0,
		DevMode:       true,
	})
	return s, cleanup
}

func serve(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	w := serve(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.NotEmpty(t, body["params_version"])
}

func TestServer_HealthWithoutDatabase(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), DevMode: true})
	w := serve(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_MarginAndMetrics(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	doc := simm.NewGradientDocument(time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), testhelpers.NewGradientFixture(4))
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	w := serve(s, http.MethodPost, "/api/simm/margin", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(s, http.MethodPost, "/api/runs", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `simm_compute_duration_seconds_count{result="success"} 2`)
	assert.Contains(t, w.Body.String(), `simm_runs_total{result="success"} 1`)
	assert.Contains(t, w.Body.String(), "simm_memo_entries")
}

func TestServer_SystemEndpoints(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	w := serve(s, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, []string{"margin_run_purge"}, status.Jobs)
	assert.Positive(t, status.Goroutines)

	w = serve(s, http.MethodGet, "/api/system/database", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dbs []DBInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dbs))
	require.Len(t, dbs, 1)
	assert.Equal(t, "runs", dbs[0].Name)

	w = serve(s, http.MethodPost, "/api/system/jobs/margin_run_purge", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(s, http.MethodPost, "/api/system/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, http.MethodGet, "/api/system/backups", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodOptions, "/api/simm/margin", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_EventsStream(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?types=run_stored"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	readJSON := func(v interface{}) {
		t.Helper()
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, v))
	}

	var hello map[string]interface{}
	readJSON(&hello)
	assert.Equal(t, "connected", hello["type"])

	doc := simm.NewGradientDocument(time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), testhelpers.NewGradientFixture(2))
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var event events.Event
	readJSON(&event)
	assert.Equal(t, events.RunStored, event.Type)
	assert.Equal(t, "margin_runs", event.Module)
	stored, ok := event.Data.(*events.RunStoredData)
	require.True(t, ok)
	assert.Equal(t, 2, stored.Paths)
}

func TestServer_EventsStreamRejectsUnknownType(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	w := serve(s, http.MethodGet, "/ws/events?types=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_EventsStreamChecksOrigin(t *testing.T) {
	s := New(Config{
		Log:       zerolog.Nop(),
		Events:    events.NewBus(zerolog.Nop()),
		WSOrigins: []string{"margin.example.com"},
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"

	dial := func(origin string) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		return conn, err
	}

	_, err := dial("https://attacker.example.net")
	assert.Error(t, err)

	conn, err := dial("https://margin.example.com")
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "slow" }

func (j *blockingJob) Run() error {
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestServer_TriggerRunningJobConflicts(t *testing.T) {
	sched := scheduler.New(zerolog.Nop())
	job := &blockingJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, sched.AddJob("@daily", job))
	s := New(Config{Log: zerolog.Nop(), Scheduler: sched, DevMode: true})

	done := make(chan int, 1)
	go func() { done <- serve(s, http.MethodPost, "/api/system/jobs/slow", nil).Code }()
	<-job.started

	w := serve(s, http.MethodPost, "/api/system/jobs/slow", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(job.release)
	assert.Equal(t, http.StatusOK, <-done)
}
