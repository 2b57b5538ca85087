package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/adapter/webhook"
	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
)

// Queue is the subset of the Queue Transport (C2) a worker runtime needs:
// the job:new wakeup subscription and the two completion publishers. Narrowed
// to an interface, duck-typed against *queue.Transport, so tests can swap in
// a fake rather than stand up a real Redis instance — the same decoupling
// internal/coordinator uses for its own Queue dependency.
type Queue interface {
	Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func(), error)
	PublishJobComplete(ctx context.Context, jobID, workerID int64, result json.RawMessage) error
	PublishJobFailed(ctx context.Context, jobID, workerID int64, errMsg string) error
}

var _ Queue = (*queue.Transport)(nil)

// Runtime is a single worker's polling loop and job executor, bound to
// exactly one (id, type) pair, spec.md §4.4. One Runtime is one OS process.
type Runtime struct {
	workerID   int64
	workerType model.JobType

	coordinator  *CoordinatorClient
	queue        Queue
	registry     *adapter.Registry
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a Runtime.
func New(workerID int64, workerType model.JobType, coordinator *CoordinatorClient, q Queue, registry *adapter.Registry, pollInterval time.Duration, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runtime{
		workerID:     workerID,
		workerType:   workerType,
		coordinator:  coordinator,
		queue:        q,
		registry:     registry,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run executes the polling loop until ctx is cancelled, spec.md §4.4
// "Polling loop: every one second, and also on each job:new event whose
// type matches". Returns nil on clean shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	msgs, unsubscribe, err := r.queue.Subscribe(ctx, model.ChannelJobNew)
	if err != nil {
		return apperror.Wrap(apperror.KindFatal, "failed to subscribe to job:new", err)
	}
	defer unsubscribe()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if r.matchesType(msg) {
				r.tick(ctx)
			}
		}
	}
}

func (r *Runtime) matchesType(msg *redis.Message) bool {
	var evt model.JobNewEvent
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		return false
	}
	return evt.Type == r.workerType
}

// tick implements spec.md §4.4's polling-loop body.
func (r *Runtime) tick(ctx context.Context) {
	w, err := r.coordinator.GetWorker(ctx, r.workerID)
	if err != nil {
		r.logger.Warn("failed to read own worker record", slog.Int64("worker_id", r.workerID), slog.String("error", err.Error()))
		return
	}
	if w == nil || w.Status == model.WorkerStatusBusy {
		return
	}

	if err := r.coordinator.UpdateWorkerStatus(ctx, r.workerID, model.WorkerStatusIdle); err != nil {
		r.logger.Warn("failed to mark self idle", slog.Int64("worker_id", r.workerID), slog.String("error", err.Error()))
	}

	job, err := r.coordinator.ClaimNextPending(ctx, r.workerType)
	if err != nil {
		r.logger.Warn("failed to claim next pending job", slog.String("type", string(r.workerType)), slog.String("error", err.Error()))
		return
	}
	if job == nil {
		return
	}

	r.processJob(ctx, job)
}

// processJob implements spec.md §4.4's six-step algorithm. Every
// PATCH/PUBLISH failure is logged but never raised above the job boundary.
func (r *Runtime) processJob(ctx context.Context, job *model.Job) {
	if err := r.coordinator.UpdateJob(ctx, job.ID, model.JobStatusProcessing, r.workerID, nil); err != nil {
		r.logger.Warn("failed to patch job to processing", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}
	if err := r.coordinator.UpdateWorkerStatus(ctx, r.workerID, model.WorkerStatusBusy); err != nil {
		r.logger.Warn("failed to patch worker to busy", slog.Int64("worker_id", r.workerID), slog.String("error", err.Error()))
	}

	execCtx := webhook.ContextWithWorkerID(ctx, r.workerID)

	a, err := r.registry.Get(job.Type)
	if err != nil {
		r.fail(ctx, job, err)
		return
	}

	result, err := a.Execute(execCtx, job.Payload)
	if err != nil {
		r.fail(ctx, job, err)
		return
	}
	r.succeed(ctx, job, result)
}

func (r *Runtime) succeed(ctx context.Context, job *model.Job, result json.RawMessage) {
	if err := r.coordinator.UpdateJob(ctx, job.ID, model.JobStatusCompleted, r.workerID, result); err != nil {
		r.logger.Warn("failed to patch job to completed", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}
	if err := r.coordinator.UpdateWorkerStatus(ctx, r.workerID, model.WorkerStatusIdle); err != nil {
		r.logger.Warn("failed to patch worker to idle after success", slog.Int64("worker_id", r.workerID), slog.String("error", err.Error()))
	}
	if err := r.queue.PublishJobComplete(ctx, job.ID, r.workerID, result); err != nil {
		r.logger.Warn("failed to publish worker:job-complete", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (r *Runtime) fail(ctx context.Context, job *model.Job, cause error) {
	errMsg := cause.Error()
	result, _ := json.Marshal(map[string]string{"error": errMsg})

	if err := r.coordinator.UpdateJob(ctx, job.ID, model.JobStatusFailed, r.workerID, result); err != nil {
		r.logger.Warn("failed to patch job to failed", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}
	if err := r.coordinator.UpdateWorkerStatus(ctx, r.workerID, model.WorkerStatusIdle); err != nil {
		r.logger.Warn("failed to patch worker to idle after failure", slog.Int64("worker_id", r.workerID), slog.String("error", err.Error()))
	}
	if err := r.queue.PublishJobFailed(ctx, job.ID, r.workerID, errMsg); err != nil {
		r.logger.Warn("failed to publish worker:job-failed", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}
}
