package coordinator_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/coordinator"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
	"github.com/taskgrid/dispatch/internal/store/memtest"
)

type fakeSupervisor struct {
	st      *memtest.Store
	workers map[int64]*model.Worker
}

func newFakeSupervisor(st *memtest.Store) *fakeSupervisor {
	return &fakeSupervisor{st: st, workers: make(map[int64]*model.Worker)}
}

// CreateWorker registers the Worker record in the store, as the real
// supervisor does, without spawning a process.
func (f *fakeSupervisor) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	w, err := f.st.CreateWorker(ctx, typ)
	if err != nil {
		return nil, err
	}
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
	added    []int64
	handlers map[string]queue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]queue.Handler)}
}

func (f *fakeQueue) AddJob(ctx context.Context, id int64, typ model.JobType, payload json.RawMessage) error {
	f.added = append(f.added, id)
	return nil
}

func (f *fakeQueue) OnHandler(channel string, h queue.Handler) {
	f.handlers[channel] = h
}

func (f *fakeQueue) Init(ctx context.Context) error { return nil }

func newTestCoordinator() (*coordinator.Coordinator, *memtest.Store, *fakeQueue) {
	st := memtest.New()
	q := newFakeQueue()
	sup := newFakeSupervisor(st)
	c := coordinator.New(st, q, sup, nil, nil)
	return c, st, q
}

func TestCreateJob_RejectsUnknownType(t *testing.T) {
	c, _, _ := newTestCoordinator()
	_, err := c.CreateJob(context.Background(), "BOGUS", json.RawMessage(`{"a":1}`))
	require.Error(t, err)
}

func TestCreateJob_RejectsEmptyPayload(t *testing.T) {
	c, _, _ := newTestCoordinator()
	_, err := c.CreateJob(context.Background(), model.JobTypeEmail, json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestCreateJob_Succeeds(t *testing.T) {
	c, _, q := newTestCoordinator()
	job, err := c.CreateJob(context.Background(), model.JobTypeEmail, json.RawMessage(`{"to":"a@example.com"}`))
	require.NoError(t, err)
	require.Equal(t, model.JobStatusPending, job.Status)
	require.Contains(t, q.added, job.ID)
}

func TestClaimNextPending_ReturnsNilWhenEmpty(t *testing.T) {
	c, _, _ := newTestCoordinator()
	job, err := c.ClaimNextPending(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestCompletionHandler_FinalizesJobAndIdlesWorker(t *testing.T) {
	c, st, q := newTestCoordinator()
	ctx := context.Background()

	job, err := c.CreateJob(ctx, model.JobTypeEmail, json.RawMessage(`{"to":"a@example.com"}`))
	require.NoError(t, err)

	w, err := c.CreateWorker(ctx, model.JobTypeEmail)
	require.NoError(t, err)
	require.NoError(t, st.UpdateWorkerStatus(ctx, w.ID, model.WorkerStatusBusy))

	claimed, err := c.ClaimNextPending(ctx, model.JobTypeEmail)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	evt := map[string]any{"jobId": job.ID, "workerId": w.ID, "result": map[string]string{"messageId": "m1"}}
	b, _ := json.Marshal(evt)
	q.handlers[model.ChannelWorkerJobComplete](ctx, model.ChannelWorkerJobComplete, b)

	updated, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, updated.Status)

	worker, err := c.GetWorker(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, model.WorkerStatusIdle, worker.Status)
}

func TestScaleWorkers_RejectsOutOfRangeCount(t *testing.T) {
	c, _, _ := newTestCoordinator()
	err := c.ScaleWorkers(context.Background(), model.JobTypeEmail, 0)
	require.Error(t, err)
}

func TestGetStats_ReflectsCreatedJobsAndWorkers(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	_, err := c.CreateJob(ctx, model.JobTypeEmail, json.RawMessage(`{"to":"a@example.com"}`))
	require.NoError(t, err)
	_, err = c.CreateWorker(ctx, model.JobTypeEmail)
	require.NoError(t, err)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Jobs.Total)
	require.Equal(t, 1, stats.Workers.Total)
}
