// Package store defines the aggregate persistence interface for Job and
// Worker records: a composite of per-entity store interfaces, narrowed to
// exactly the two subsystems spec.md's data model names — Job Store (C3)
// and Worker Registry (C4) — implemented by a single SQLite backend, per
// spec.md naming SQLite as the primary store.
package store

import (
	"context"

	"github.com/taskgrid/dispatch/internal/model"
)

// JobStore is the durable record of each job's state, payload, and result
// (C3). Claim is the sole cross-request synchronization primitive,
// spec.md §4.1.2.
type JobStore interface {
	CreateJob(ctx context.Context, typ model.JobType, payload []byte) (*model.Job, error)
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	UpdateJob(ctx context.Context, id int64, status model.JobStatus, workerID *int64, result []byte) error
	// ClaimNextPending implements the claim protocol of spec.md §4.1.2:
	// select the oldest pending job of type typ and atomically set it to
	// processing. Returns (nil, nil) if no job was claimed — not an error.
	ClaimNextPending(ctx context.Context, typ model.JobType) (*model.Job, error)
	JobStats(ctx context.Context) (byStatus map[model.JobStatus]int, byType map[model.JobType]int, total int, err error)
}

// WorkerStore is the durable record of each worker's identity and status
// (C4).
type WorkerStore interface {
	CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error)
	GetWorker(ctx context.Context, id int64) (*model.Worker, error)
	UpdateWorkerStatus(ctx context.Context, id int64, status model.WorkerStatus) error
	DeactivateWorker(ctx context.Context, id int64) error
	ListWorkers(ctx context.Context, typ model.JobType) ([]*model.Worker, error)
	ListAllWorkers(ctx context.Context) ([]*model.Worker, error)
	WorkerStats(ctx context.Context) (byStatus map[model.WorkerStatus]int, byType map[model.JobType]int, total int, err error)
}

// Store is the aggregate persistence interface, narrowed to C3+C4.
type Store interface {
	JobStore
	WorkerStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
