package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cornercase/internal/capture"
	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/drive"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeLifecycle struct{ st incident.Stats }

func (f fakeLifecycle) Stats() incident.Stats { return f.st }

type fakeBuffer struct{ st capture.Stats }

func (f fakeBuffer) Stats() capture.Stats { return f.st }

type fakeRunner struct {
	st       drive.Stats
	triggers atomic.Int32
}

func (f *fakeRunner) Stats() drive.Stats { return f.st }
func (f *fakeRunner) ManualTrigger()     { f.triggers.Add(1) }

type testServer struct {
	srv     *Server
	mux     http.Handler
	runner  *fakeRunner
	reviews *ReviewQueue
	db      *db.DB
	runID   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	ts := &testServer{
		runner:  &fakeRunner{st: drive.Stats{Tick: 42}},
		reviews: NewReviewQueue(),
		db:      d,
		runID:   uuid.New(),
	}
	ts.srv, err = NewServer(Options{
		RunID:     ts.runID,
		Lifecycle: fakeLifecycle{st: incident.Stats{State: incident.Idle, SessionID: 3}},
		Buffer:    fakeBuffer{st: capture.Stats{Capacity: 48, Len: 12}},
		Runner:    ts.runner,
		Reviews:   ts.reviews,
		Incidents: d,
		Pedals:    d,
	})
	require.NoError(t, err)
	ts.mux = LoggingMiddleware(ts.srv.ServeMux())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Serve(t, ts.mux, method, path, body)
}

func (ts *testServer) openReview(t *testing.T) <-chan incident.Decision {
	t.Helper()
	ch, err := ts.reviews.Request(context.Background(), incident.ReviewRequest{
		ID:        uuid.New(),
		SessionID: 3,
		Kind:      control.TriggerSteer,
		Distance:  120,
	})
	require.NoError(t, err)
	return ch
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := testutil.DecodeJSON[Status](t, w)
	assert.Equal(t, ts.runID, st.RunID)
	assert.Equal(t, uint64(3), st.Lifecycle.SessionID)
	assert.Equal(t, 48, st.Buffer.Capacity)
	assert.Equal(t, uint64(42), st.Drive.Tick)
	assert.Nil(t, st.Pending)
	assert.Nil(t, st.Feed)

	ts.openReview(t)
	ts.reviews.Observe(incident.Outcome{Verdict: incident.Rollback, SessionID: 2, NextSessionID: 2})
	st = testutil.DecodeJSON[Status](t, ts.do(t, http.MethodGet, "/api/status", ""))
	require.NotNil(t, st.Pending)
	assert.Equal(t, control.TriggerSteer, st.Pending.Kind)
	require.Len(t, st.Recent, 1)
	assert.Equal(t, incident.Rollback, st.Recent[0].Verdict)

	testutil.AssertJSONError(t, ts.do(t, http.MethodPost, "/api/status", ""), http.StatusMethodNotAllowed, "method not allowed")
}

func TestReview(t *testing.T) {
	ts := newTestServer(t)

	testutil.AssertJSONError(t, ts.do(t, http.MethodGet, "/api/review", ""), http.StatusNotFound, "no review pending")
	testutil.AssertJSONError(t, ts.do(t, http.MethodPost, "/api/review", `{"decision":"commit"}`), http.StatusConflict, "no review pending")

	ch := ts.openReview(t)
	w := ts.do(t, http.MethodGet, "/api/review", "")
	require.Equal(t, http.StatusOK, w.Code)
	req := testutil.DecodeJSON[incident.ReviewRequest](t, w)
	assert.Equal(t, 120.0, req.Distance)

	bad := map[string]string{
		"unknown verdict":      `{"decision":"maybe"}`,
		"reason with rollback": `{"decision":"rollback","reason":"vehicle overlooked"}`,
		"unknown reason":       `{"decision":"commit","reason":"sunspots"}`,
		"unknown field":        `{"decision":"commit","severity":3}`,
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			testutil.AssertJSONError(t, ts.do(t, http.MethodPost, "/api/review", body), http.StatusBadRequest, "")
		})
	}

	w = ts.do(t, http.MethodPost, "/api/review", `{"decision":"commit","reason":"vehicle overlooked","comment":"van in fog"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case d := <-ch:
		assert.Equal(t, incident.Decision{Verdict: incident.Commit, Reason: incident.VehicleMissed, Comment: "van in fog"}, d)
	case <-time.After(time.Second):
		t.Fatal("decision not delivered")
	}

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/review", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodDelete, "/api/review", "").Code)
}

func TestTrigger(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/api/trigger", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodGet, "/api/trigger", "").Code)
	assert.Equal(t, int32(1), ts.runner.triggers.Load())
}

func TestIncidents(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/incidents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for i := 0; i < 3; i++ {
		require.NoError(t, ts.db.AppendIncident(context.Background(), incident.Record{
			ID:          uuid.New(),
			SessionID:   uint64(i),
			Reason:      incident.PedestrianMissed,
			TriggerKind: control.TriggerBrake,
			CreatedAt:   time.Unix(int64(100+i), 0),
		}))
	}

	w = ts.do(t, http.MethodGet, "/api/incidents?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	records := testutil.DecodeJSON[[]incident.Record](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(2), records[0].SessionID)
	assert.Equal(t, incident.PedestrianMissed, records[0].Reason)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/incidents?limit=zero", "").Code)

	ts.srv.opts.Incidents = nil
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/incidents", "").Code)
}

func TestPedalChart(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/charts/pedals", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/charts/pedals?run_id=nope", "").Code)

	var samples []db.PedalSample
	for i := 0; i < 5; i++ {
		samples = append(samples, db.PedalSample{RunID: ts.runID, Tick: uint64(i), AtNs: int64(i) * 1e8, ThrottlePrimary: 0.5})
	}
	require.NoError(t, ts.db.InsertPedalSamples(context.Background(), samples))

	w := ts.do(t, http.MethodGet, "/api/charts/pedals", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), ts.runID.String())
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeColor(tt.code))
	}
}

func TestReviewQueueHistoryBounded(t *testing.T) {
	q := NewReviewQueue()
	for i := 0; i < maxHistory+5; i++ {
		q.Observe(incident.Outcome{SessionID: uint64(i)})
	}
	h := q.History()
	require.Len(t, h, maxHistory)
	assert.Equal(t, uint64(5), h[0].SessionID)
}
