// Package coordinator implements the Dispatch Coordinator (C6): admission,
// enqueue, claim delegation, completion handlers, and stats aggregation.
// It is a composition root — it sits above the stores and queue transport,
// below the HTTP layer, and breaks the import cycle between internal/api
// and internal/supervisor.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
	"github.com/taskgrid/dispatch/internal/store"
)

// Supervisor is the subset of C5 the coordinator delegates worker
// lifecycle calls to.
type Supervisor interface {
	CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error)
	StopWorker(ctx context.Context, id int64) (bool, error)
	ScaleWorkers(ctx context.Context, typ model.JobType, desired int) error
}

// Queue is the subset of C2 the coordinator uses for enqueue and
// completion-channel subscription.
type Queue interface {
	AddJob(ctx context.Context, id int64, typ model.JobType, payload json.RawMessage) error
	OnHandler(channel string, h queue.Handler)
	Init(ctx context.Context) error
}

// MaxWorkersPerType bounds "scale workers" requests, spec.md §4.1 "count
// must lie in [1, MAX]".
const MaxWorkersPerType = 64

// Coordinator implements the business logic behind the HTTP contract of
// spec.md §4.1 and §6.
type Coordinator struct {
	store      store.Store
	queue      Queue
	supervisor Supervisor
	ext        *ext.Registry
	logger     *slog.Logger
}

// New creates a Coordinator.
func New(st store.Store, q Queue, sup Supervisor, extensions *ext.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	c := &Coordinator{store: st, queue: q, supervisor: sup, ext: extensions, logger: logger}
	q.OnHandler(model.ChannelWorkerJobComplete, c.handleJobComplete)
	q.OnHandler(model.ChannelWorkerJobFailed, c.handleJobFailed)
	return c
}

// Start subscribes the coordinator to the completion channels, spec.md
// §4.3 "init".
func (c *Coordinator) Start(ctx context.Context) error {
	return c.queue.Init(ctx)
}

// CreateJob validates and admits a new job, spec.md §4.1 "Create job".
func (c *Coordinator) CreateJob(ctx context.Context, typ model.JobType, payload json.RawMessage) (*model.Job, error) {
	if !model.ValidJobTypes[typ] {
		return nil, apperror.Validationf("unknown job type %q", typ)
	}
	if len(payload) == 0 || !isNonEmptyJSONObject(payload) {
		return nil, apperror.Validationf("payload must be a non-empty object")
	}

	job, err := c.store.CreateJob(ctx, typ, payload)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := c.queue.AddJob(ctx, job.ID, typ, payload); err != nil {
		c.logger.Error("failed to enqueue job to backlog", slog.Int64("job_id", job.ID), slog.String("error", err.Error()))
	}

	c.ext.EmitJobEnqueued(ctx, job)
	return job, nil
}

// GetJob returns a job by id, spec.md §4.1 "Get job".
func (c *Coordinator) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	return c.store.GetJob(ctx, id)
}

// UpdateJob is the idempotent setter workers call via PATCH, spec.md §4.1
// "Update job status".
func (c *Coordinator) UpdateJob(ctx context.Context, id int64, status model.JobStatus, workerID *int64, result json.RawMessage) error {
	return c.store.UpdateJob(ctx, id, status, workerID, result)
}

// ClaimNextPending implements "Get next pending by type", spec.md §4.1.2.
// The claiming worker's id is not yet recorded on the job at this point
// (that happens via a separate PATCH in processJob, spec.md §4.4), so the
// claimed hook is emitted with workerID 0; no worker-attributed claimed
// hook is emitted anywhere.
func (c *Coordinator) ClaimNextPending(ctx context.Context, typ model.JobType) (*model.Job, error) {
	job, err := c.store.ClaimNextPending(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	if job != nil {
		c.ext.EmitJobClaimed(ctx, job, 0)
	}
	return job, nil
}

// CreateWorker delegates to C5, spec.md §4.1 "Create worker".
func (c *Coordinator) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	if !model.ValidJobTypes[typ] {
		return nil, apperror.Validationf("unknown job type %q", typ)
	}
	w, err := c.supervisor.CreateWorker(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}
	c.ext.EmitWorkerCreated(ctx, w)
	return w, nil
}

// GetWorker returns a worker by id, spec.md §4.1 "Get worker".
func (c *Coordinator) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	return c.store.GetWorker(ctx, id)
}

// StopWorker delegates to C5, spec.md §4.1 "Stop worker".
func (c *Coordinator) StopWorker(ctx context.Context, id int64) error {
	existed, err := c.supervisor.StopWorker(ctx, id)
	if err != nil {
		return fmt.Errorf("stop worker: %w", err)
	}
	if !existed {
		return apperror.NotFoundf("worker %d not found", id)
	}
	c.ext.EmitWorkerStopped(ctx, id)
	return nil
}

// UpdateWorkerStatus is the idempotent setter, spec.md §4.1 "Update worker
// status".
func (c *Coordinator) UpdateWorkerStatus(ctx context.Context, id int64, status model.WorkerStatus) error {
	return c.store.UpdateWorkerStatus(ctx, id, status)
}

// ScaleWorkers delegates to C5, spec.md §4.1 "Scale workers of type".
func (c *Coordinator) ScaleWorkers(ctx context.Context, typ model.JobType, count int) error {
	if !model.ValidJobTypes[typ] {
		return apperror.Validationf("unknown job type %q", typ)
	}
	if count < 1 || count > MaxWorkersPerType {
		return apperror.Validationf("count must lie in [1, %d]", MaxWorkersPerType)
	}
	return c.supervisor.ScaleWorkers(ctx, typ, count)
}

// Stats aggregates counts per status and per type for both Job and Worker,
// spec.md §4.1 "Get stats".
type Stats struct {
	Jobs struct {
		ByStatus map[model.JobStatus]int `json:"byStatus"`
		ByType   map[model.JobType]int   `json:"byType"`
		Total    int                     `json:"total"`
	} `json:"jobs"`
	Workers struct {
		ByStatus map[model.WorkerStatus]int `json:"byStatus"`
		ByType   map[model.JobType]int      `json:"byType"`
		Total    int                        `json:"total"`
	} `json:"workers"`
}

// GetStats assembles the aggregate stats, spec.md §4.1 "Get stats".
func (c *Coordinator) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats

	jobByStatus, jobByType, jobTotal, err := c.store.JobStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	s.Jobs.ByStatus, s.Jobs.ByType, s.Jobs.Total = jobByStatus, jobByType, jobTotal

	workerByStatus, workerByType, workerTotal, err := c.store.WorkerStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("worker stats: %w", err)
	}
	s.Workers.ByStatus, s.Workers.ByType, s.Workers.Total = workerByStatus, workerByType, workerTotal

	return &s, nil
}

// handleJobComplete implements spec.md §4.1.3's worker:job-complete
// handler, idempotently.
func (c *Coordinator) handleJobComplete(ctx context.Context, _ string, payload []byte) {
	var evt model.JobCompleteEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		c.logger.Error("invalid worker:job-complete payload", slog.String("error", err.Error()))
		return
	}
	if err := c.store.UpdateJob(ctx, evt.JobID, model.JobStatusCompleted, &evt.WorkerID, evt.Result); err != nil {
		c.logger.Error("failed to finalize completed job", slog.Int64("job_id", evt.JobID), slog.String("error", err.Error()))
	}
	if err := c.store.UpdateWorkerStatus(ctx, evt.WorkerID, model.WorkerStatusIdle); err != nil {
		c.logger.Error("failed to idle worker after completion", slog.Int64("worker_id", evt.WorkerID), slog.String("error", err.Error()))
	}

	job, err := c.store.GetJob(ctx, evt.JobID)
	if err != nil || job == nil {
		return
	}
	c.ext.EmitJobCompleted(ctx, job, job.UpdatedAt.Sub(job.CreatedAt))
}

// handleJobFailed implements spec.md §4.1.3's worker:job-failed handler,
// idempotently.
func (c *Coordinator) handleJobFailed(ctx context.Context, _ string, payload []byte) {
	var evt model.JobFailedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		c.logger.Error("invalid worker:job-failed payload", slog.String("error", err.Error()))
		return
	}
	result, _ := json.Marshal(map[string]string{"error": evt.Error})
	if err := c.store.UpdateJob(ctx, evt.JobID, model.JobStatusFailed, &evt.WorkerID, result); err != nil {
		c.logger.Error("failed to finalize failed job", slog.Int64("job_id", evt.JobID), slog.String("error", err.Error()))
	}
	if err := c.store.UpdateWorkerStatus(ctx, evt.WorkerID, model.WorkerStatusIdle); err != nil {
		c.logger.Error("failed to idle worker after failure", slog.Int64("worker_id", evt.WorkerID), slog.String("error", err.Error()))
	}

	job, err := c.store.GetJob(ctx, evt.JobID)
	if err != nil || job == nil {
		return
	}
	c.ext.EmitJobFailed(ctx, job, evt.Error)
}

func isNonEmptyJSONObject(b []byte) bool {
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return false
	}
	return len(v) > 0
}
