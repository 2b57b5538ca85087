package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.CreateJob(ctx, model.JobTypeSMS, []byte(`{"to":"+1"}`))
	require.NoError(t, err)
	require.Equal(t, model.JobStatusPending, j.Status)
	require.NotZero(t, j.ID)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, j.ID, got.ID)
	require.Equal(t, model.JobTypeSMS, got.Type)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), 9999)
	require.Error(t, err)
}

func TestClaimNextPending_SingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.CreateJob(ctx, model.JobTypeWhatsApp, []byte(`{}`))
	require.NoError(t, err)

	claimed1, err := s.ClaimNextPending(ctx, model.JobTypeWhatsApp)
	require.NoError(t, err)
	require.NotNil(t, claimed1)
	require.Equal(t, j.ID, claimed1.ID)
	require.Equal(t, model.JobStatusProcessing, claimed1.Status)

	claimed2, err := s.ClaimNextPending(ctx, model.JobTypeWhatsApp)
	require.NoError(t, err)
	require.Nil(t, claimed2)
}

func TestClaimNextPending_Empty(t *testing.T) {
	s := newTestStore(t)
	claimed, err := s.ClaimNextPending(context.Background(), model.JobTypeEmail)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestUpdateJob_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.CreateJob(ctx, model.JobTypeNotification, []byte(`{}`))
	require.NoError(t, err)

	workerID := int64(7)
	require.NoError(t, s.UpdateJob(ctx, j.ID, model.JobStatusCompleted, &workerID, []byte(`{"ok":true}`)))
	require.NoError(t, s.UpdateJob(ctx, j.ID, model.JobStatusCompleted, &workerID, []byte(`{"ok":true}`)))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, got.Status)
	require.Equal(t, workerID, *got.WorkerID)
}

func TestJobStats_SumsToTotal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateJob(ctx, model.JobTypeSMS, []byte(`{}`))
		require.NoError(t, err)
	}

	byStatus, _, total, err := s.JobStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	sum := 0
	for _, n := range byStatus {
		sum += n
	}
	require.Equal(t, total, sum)
}

func TestCreateWorker_ScaleOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		w, err := s.CreateWorker(ctx, model.JobTypeEmail)
		require.NoError(t, err)
		ids = append(ids, w.ID)
	}

	workers, err := s.ListWorkers(ctx, model.JobTypeEmail)
	require.NoError(t, err)
	require.Len(t, workers, 3)
	for i, w := range workers {
		require.Equal(t, ids[i], w.ID, "oldest-first order expected")
	}
}

func TestDeactivateWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.CreateWorker(ctx, model.JobTypeCronjob)
	require.NoError(t, err)
	require.NoError(t, s.DeactivateWorker(ctx, w.ID))

	workers, err := s.ListWorkers(ctx, model.JobTypeCronjob)
	require.NoError(t, err)
	require.Empty(t, workers)
}
