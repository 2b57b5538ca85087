package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskgrid/dispatch/internal/model"
)

// Registry holds registered extensions and emits each hook to every
// extension that implements it, minus any workflow/cron hook emitters —
// this system has neither concept.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension to the registry.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	r.logger.Info("registered extension", slog.String("name", e.Name()))
}

func (r *Registry) EmitJobEnqueued(ctx context.Context, j *model.Job) {
	for _, e := range r.extensions {
		if h, ok := e.(JobEnqueued); ok {
			h.OnJobEnqueued(ctx, j)
		}
	}
}

func (r *Registry) EmitJobClaimed(ctx context.Context, j *model.Job, workerID int64) {
	for _, e := range r.extensions {
		if h, ok := e.(JobClaimed); ok {
			h.OnJobClaimed(ctx, j, workerID)
		}
	}
}

func (r *Registry) EmitJobCompleted(ctx context.Context, j *model.Job, elapsed time.Duration) {
	for _, e := range r.extensions {
		if h, ok := e.(JobCompleted); ok {
			h.OnJobCompleted(ctx, j, elapsed)
		}
	}
}

func (r *Registry) EmitJobFailed(ctx context.Context, j *model.Job, reason string) {
	for _, e := range r.extensions {
		if h, ok := e.(JobFailed); ok {
			h.OnJobFailed(ctx, j, reason)
		}
	}
}

func (r *Registry) EmitWorkerCreated(ctx context.Context, w *model.Worker) {
	for _, e := range r.extensions {
		if h, ok := e.(WorkerCreated); ok {
			h.OnWorkerCreated(ctx, w)
		}
	}
}

func (r *Registry) EmitWorkerRestarted(ctx context.Context, w *model.Worker, exitCode int) {
	for _, e := range r.extensions {
		if h, ok := e.(WorkerRestarted); ok {
			h.OnWorkerRestarted(ctx, w, exitCode)
		}
	}
}

func (r *Registry) EmitWorkerStopped(ctx context.Context, workerID int64) {
	for _, e := range r.extensions {
		if h, ok := e.(WorkerStopped); ok {
			h.OnWorkerStopped(ctx, workerID)
		}
	}
}
