package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

// CreateWorker registers a new Worker record, spec.md §4.2 "createWorker".
func (s *Store) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (type, status, is_active, last_active) VALUES (?, ?, 1, ?)`,
		string(typ), string(model.WorkerStatusIdle), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert worker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.Worker{
		ID:         id,
		Type:       typ,
		Status:     model.WorkerStatusIdle,
		IsActive:   true,
		LastActive: now,
	}, nil
}

// GetWorker returns the Worker record, spec.md §4.1 "Get worker".
func (s *Store) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, is_active, last_active FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundf("worker %d not found", id)
		}
		return nil, fmt.Errorf("scan worker %d: %w", id, err)
	}
	return w, nil
}

// UpdateWorkerStatus is the idempotent setter for {status}, spec.md §4.1
// "Update worker status".
func (s *Store) UpdateWorkerStatus(ctx context.Context, id int64, status model.WorkerStatus) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = ?, last_active = ? WHERE id = ?`,
		string(status), now.Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update worker %d status: %w", id, err)
	}
	return nil
}

// DeactivateWorker marks a worker inactive on graceful stop, spec.md §4.2
// "stopWorker".
func (s *Store) DeactivateWorker(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate worker %d: %w", id, err)
	}
	return nil
}

// ListWorkers returns active workers of the given type, ordered oldest
// first — the order spec.md §4.2 "scaleWorkers" scales down by.
func (s *Store) ListWorkers(ctx context.Context, typ model.JobType) ([]*model.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status, is_active, last_active FROM workers WHERE type = ? AND is_active = 1 ORDER BY id ASC`,
		string(typ))
	if err != nil {
		return nil, fmt.Errorf("list workers of type %s: %w", typ, err)
	}
	defer rows.Close()
	return scanWorkers(rows)
}

// ListAllWorkers returns every active worker, used by the supervisor on
// init to respawn child processes, spec.md §4.2 "init".
func (s *Store) ListAllWorkers(ctx context.Context) ([]*model.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status, is_active, last_active FROM workers WHERE is_active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all workers: %w", err)
	}
	defer rows.Close()
	return scanWorkers(rows)
}

// WorkerStats returns aggregate counts per status and per type, spec.md
// §4.1 "Get stats".
func (s *Store) WorkerStats(ctx context.Context) (map[model.WorkerStatus]int, map[model.JobType]int, int, error) {
	byStatus := map[model.WorkerStatus]int{}
	byType := map[model.JobType]int{}
	total := 0

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM workers WHERE is_active = 1 GROUP BY status`)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("worker stats by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, nil, 0, fmt.Errorf("scan worker status count: %w", err)
		}
		byStatus[model.WorkerStatus(status)] = count
		total += count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM workers WHERE is_active = 1 GROUP BY type`)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("worker stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, nil, 0, fmt.Errorf("scan worker type count: %w", err)
		}
		byType[model.JobType(typ)] = count
	}

	return byStatus, byType, total, nil
}

func scanWorker(row scanner) (*model.Worker, error) {
	var (
		w          model.Worker
		typ        string
		status     string
		isActive   int
		lastActive string
	)
	if err := row.Scan(&w.ID, &typ, &status, &isActive, &lastActive); err != nil {
		return nil, err
	}
	w.Type = model.JobType(typ)
	w.Status = model.WorkerStatus(status)
	w.IsActive = isActive != 0
	var err error
	if w.LastActive, err = time.Parse(timeLayout, lastActive); err != nil {
		return nil, fmt.Errorf("parse last_active: %w", err)
	}
	return &w, nil
}

func scanWorkers(rows *sql.Rows) ([]*model.Worker, error) {
	var out []*model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
