package supervisor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/store/memtest"
	"github.com/taskgrid/dispatch/internal/supervisor"
)

func TestCreateWorker_RegistersAndSpawns(t *testing.T) {
	st := memtest.New()
	sup := supervisor.New(st, nil, nil, "/bin/sleep", "http://localhost:8080")

	w, err := sup.CreateWorker(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	require.Equal(t, model.JobTypeEmail, w.Type)

	got, err := st.GetWorker(context.Background(), w.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)

	sup.Shutdown(context.Background())
}

func TestStopWorker_UnknownReturnsFalse(t *testing.T) {
	st := memtest.New()
	sup := supervisor.New(st, nil, nil, "/bin/sleep", "http://localhost:8080")

	existed, err := sup.StopWorker(context.Background(), 999)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestStopWorker_KnownReturnsTrueAndDeactivates(t *testing.T) {
	st := memtest.New()
	sup := supervisor.New(st, nil, nil, "/bin/sleep", "http://localhost:8080")

	w, err := sup.CreateWorker(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)

	existed, err := sup.StopWorker(context.Background(), w.ID)
	require.NoError(t, err)
	require.True(t, existed)

	got, err := st.GetWorker(context.Background(), w.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestScaleWorkers_CreatesUpToDesired(t *testing.T) {
	st := memtest.New()
	sup := supervisor.New(st, nil, nil, "/bin/sleep", "http://localhost:8080")

	require.NoError(t, sup.ScaleWorkers(context.Background(), model.JobTypeEmail, 3))

	workers, err := st.ListWorkers(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	require.Len(t, workers, 3)

	sup.Shutdown(context.Background())
}

func TestScaleWorkers_StopsOldestFirstWhenScalingDown(t *testing.T) {
	st := memtest.New()
	sup := supervisor.New(st, nil, nil, "/bin/sleep", "http://localhost:8080")

	require.NoError(t, sup.ScaleWorkers(context.Background(), model.JobTypeEmail, 3))
	workers, err := st.ListWorkers(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	oldestID := workers[0].ID

	require.NoError(t, sup.ScaleWorkers(context.Background(), model.JobTypeEmail, 1))

	remaining, err := st.ListWorkers(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.NotEqual(t, oldestID, remaining[0].ID)
}

type restartCounter struct{ n atomic.Int32 }

func (r *restartCounter) Name() string { return "restart-counter" }

func (r *restartCounter) OnWorkerRestarted(ctx context.Context, w *model.Worker, exitCode int) {
	r.n.Add(1)
}

func TestWorkerProcess_RespawnsOnCrash(t *testing.T) {
	st := memtest.New()
	reg := ext.NewRegistry(nil)
	restarts := &restartCounter{}
	reg.Register(restarts)
	sup := supervisor.New(st, reg, nil, "/bin/false", "http://localhost:8080")

	w, err := sup.CreateWorker(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	sup.Shutdown(context.Background())
	_ = w
	require.Greater(t, restarts.n.Load(), int32(0))
}
