package ext_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/model"
)

type recordingExt struct {
	completed int
	failed    int
}

func (r *recordingExt) Name() string { return "recording" }
func (r *recordingExt) OnJobCompleted(ctx context.Context, j *model.Job, elapsed time.Duration) {
	r.completed++
}
func (r *recordingExt) OnJobFailed(ctx context.Context, j *model.Job, reason string) {
	r.failed++
}

func TestRegistry_EmitsToImplementers(t *testing.T) {
	reg := ext.NewRegistry(nil)
	rec := &recordingExt{}
	reg.Register(rec)

	j := &model.Job{ID: 1}
	reg.EmitJobCompleted(context.Background(), j, time.Millisecond)
	reg.EmitJobFailed(context.Background(), j, "boom")
	reg.EmitJobEnqueued(context.Background(), j) // no-op: rec doesn't implement it

	require.Equal(t, 1, rec.completed)
	require.Equal(t, 1, rec.failed)
}
