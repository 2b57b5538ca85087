// Package memtest is a fully in-memory implementation of store.Store,
// intended for unit testing the coordinator and worker runtime without a
// real SQLite file. A simple map+mutex shape, narrowed to the two entities
// spec.md actually names: Job and Worker.
package memtest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/store"
)

// Store is a safe-for-concurrent-use in-memory store.Store.
type Store struct {
	mu sync.Mutex

	nextJobID    int64
	nextWorkerID int64
	jobs         map[int64]*model.Job
	workers      map[int64]*model.Worker
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[int64]*model.Job),
		workers: make(map[int64]*model.Worker),
	}
}

func (s *Store) Migrate(ctx context.Context) error { return nil }
func (s *Store) Ping(ctx context.Context) error    { return nil }
func (s *Store) Close() error                       { return nil }

func (s *Store) CreateJob(ctx context.Context, typ model.JobType, payload []byte) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	now := time.Now().UTC()
	j := &model.Job{
		ID:        s.nextJobID,
		Type:      typ,
		Payload:   json.RawMessage(payload),
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperror.NotFoundf("job %d not found", id)
	}
	return cloneJob(j), nil
}

func (s *Store) UpdateJob(ctx context.Context, id int64, status model.JobStatus, workerID *int64, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperror.NotFoundf("job %d not found", id)
	}
	j.Status = status
	if workerID != nil {
		j.WorkerID = workerID
	}
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ClaimNextPending(ctx context.Context, typ model.JobType) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *model.Job
	var ids []int64
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		j := s.jobs[id]
		if j.Type == typ && j.Status == model.JobStatusPending {
			candidate = j
			break
		}
	}
	if candidate == nil {
		return nil, nil
	}
	candidate.Status = model.JobStatusProcessing
	candidate.UpdatedAt = time.Now().UTC()
	return cloneJob(candidate), nil
}

func (s *Store) JobStats(ctx context.Context) (map[model.JobStatus]int, map[model.JobType]int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := map[model.JobStatus]int{}
	byType := map[model.JobType]int{}
	for _, j := range s.jobs {
		byStatus[j.Status]++
		byType[j.Type]++
	}
	return byStatus, byType, len(s.jobs), nil
}

func (s *Store) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWorkerID++
	w := &model.Worker{
		ID:         s.nextWorkerID,
		Type:       typ,
		Status:     model.WorkerStatusIdle,
		IsActive:   true,
		LastActive: time.Now().UTC(),
	}
	s.workers[w.ID] = w
	return cloneWorker(w), nil
}

func (s *Store) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, apperror.NotFoundf("worker %d not found", id)
	}
	return cloneWorker(w), nil
}

func (s *Store) UpdateWorkerStatus(ctx context.Context, id int64, status model.WorkerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return apperror.NotFoundf("worker %d not found", id)
	}
	w.Status = status
	w.LastActive = time.Now().UTC()
	return nil
}

func (s *Store) DeactivateWorker(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return apperror.NotFoundf("worker %d not found", id)
	}
	w.IsActive = false
	return nil
}

func (s *Store) ListWorkers(ctx context.Context, typ model.JobType) ([]*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, w := range s.workers {
		if w.Type == typ && w.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*model.Worker, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneWorker(s.workers[id]))
	}
	return out, nil
}

func (s *Store) ListAllWorkers(ctx context.Context) ([]*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, w := range s.workers {
		if w.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*model.Worker, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneWorker(s.workers[id]))
	}
	return out, nil
}

func (s *Store) WorkerStats(ctx context.Context) (map[model.WorkerStatus]int, map[model.JobType]int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := map[model.WorkerStatus]int{}
	byType := map[model.JobType]int{}
	total := 0
	for _, w := range s.workers {
		if !w.IsActive {
			continue
		}
		byStatus[w.Status]++
		byType[w.Type]++
		total++
	}
	return byStatus, byType, total, nil
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	return &c
}

func cloneWorker(w *model.Worker) *model.Worker {
	c := *w
	return &c
}
