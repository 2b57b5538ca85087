package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/api"
	"github.com/taskgrid/dispatch/internal/coordinator"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
	"github.com/taskgrid/dispatch/internal/store/memtest"
)

type fakeSupervisor struct {
	workers map[int64]*model.Worker
	next    int64
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{workers: make(map[int64]*model.Worker)}
}

func (f *fakeSupervisor) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	f.next++
	w := &model.Worker{ID: f.next, Type: typ, Status: model.WorkerStatusIdle, IsActive: true}
	f.workers[w.ID] = w
	return w, nil
}

func (f *fakeSupervisor) StopWorker(ctx context.Context, id int64) (bool, error) {
	_, ok := f.workers[id]
	delete(f.workers, id)
	return ok, nil
}

func (f *fakeSupervisor) ScaleWorkers(ctx context.Context, typ model.JobType, desired int) error {
	return nil
}

type fakeQueue struct {
	handlers map[string]queue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]queue.Handler)}
}

func (f *fakeQueue) AddJob(ctx context.Context, id int64, typ model.JobType, payload json.RawMessage) error {
	return nil
}

func (f *fakeQueue) OnHandler(channel string, h queue.Handler) { f.handlers[channel] = h }
func (f *fakeQueue) Init(ctx context.Context) error            { return nil }

func newTestServer() *httptest.Server {
	return newTestServerWithChecks()
}

func newTestServerWithChecks(checks ...api.HealthCheck) *httptest.Server {
	st := memtest.New()
	coord := coordinator.New(st, newFakeQueue(), newFakeSupervisor(), nil, nil)
	a := api.New(coord, nil, checks...)
	return httptest.NewServer(a.Handler())
}

func TestCreateJob_ReturnsJobID(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/jobs", "application/json", strings.NewReader(`{"type":"EMAIL","payload":{"to":"a@example.com"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		JobID int64 `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotZero(t, body.JobID)
}

func TestCreateJob_RejectsUnknownType(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/jobs", "application/json", strings.NewReader(`{"type":"BOGUS","payload":{"a":1}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob_NotFoundReturns404(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClaimNextJob_ReturnsNullWhenEmpty(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/next/EMAIL")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Job *model.Job `json:"job"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Nil(t, body.Job)
}

func TestCreateAndScaleWorkers(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/workers", "application/json", strings.NewReader(`{"type":"EMAIL"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		WorkerID int64 `json:"workerId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.WorkerID)

	scaleResp, err := http.Post(srv.URL+"/api/workers/scale", "application/json", strings.NewReader(`{"type":"EMAIL","count":0}`))
	require.NoError(t, err)
	defer scaleResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, scaleResp.StatusCode)
}

func TestStats_ReflectsCreatedJob(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	_, err := http.Post(srv.URL+"/api/jobs", "application/json", strings.NewReader(`{"type":"EMAIL","payload":{"to":"a@example.com"}}`))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Jobs struct {
			Total int `json:"total"`
		} `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Jobs.Total)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz_ReportsDegradedOnFailingCheck(t *testing.T) {
	srv := newTestServerWithChecks(api.HealthCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error { return fmt.Errorf("connection refused") },
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
