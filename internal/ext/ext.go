// Package ext defines the extension system for Dispatch: lifecycle hooks
// notified of job and worker events, so logging and metrics can observe
// the system without the coordinator/supervisor/runtime importing them
// directly. Limited to exactly the events spec.md's data flow describes:
// job lifecycle and worker lifecycle.
package ext

import (
	"context"
	"time"

	"github.com/taskgrid/dispatch/internal/model"
)

// Extension is the base interface all extensions implement.
type Extension interface {
	Name() string
}

// JobEnqueued is called after a job is admitted and appended to the
// backlog, spec.md §4.1 "Create job".
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *model.Job)
}

// JobClaimed is called when a worker successfully claims a pending job,
// spec.md §4.1.2.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *model.Job, workerID int64)
}

// JobCompleted is called after the coordinator's completion handler marks
// a job completed, spec.md §4.1.3.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *model.Job, elapsed time.Duration)
}

// JobFailed is called after the coordinator's completion handler marks a
// job failed, spec.md §4.1.3.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *model.Job, reason string)
}

// WorkerCreated is called when the supervisor registers and starts a new
// worker process, spec.md §4.2 "createWorker".
type WorkerCreated interface {
	OnWorkerCreated(ctx context.Context, w *model.Worker)
}

// WorkerRestarted is called when the supervisor respawns a worker after a
// non-zero exit, spec.md §4.2 "startWorker".
type WorkerRestarted interface {
	OnWorkerRestarted(ctx context.Context, w *model.Worker, exitCode int)
}

// WorkerStopped is called when the supervisor stops a worker, spec.md
// §4.2 "stopWorker".
type WorkerStopped interface {
	OnWorkerStopped(ctx context.Context, workerID int64)
}
