package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// CreateJob inserts a new pending Job, spec.md §4.1 "Create job".
func (s *Store) CreateJob(ctx context.Context, typ model.JobType, payload []byte) (*model.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (type, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(typ), string(payload), string(model.JobStatusPending), now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.Job{
		ID:        id,
		Type:      typ,
		Payload:   json.RawMessage(payload),
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetJob returns the Job with payload and result deserialized, spec.md §4.1
// "Get job".
func (s *Store) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, payload, status, worker_id, result, created_at, updated_at FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundf("job %d not found", id)
		}
		return nil, fmt.Errorf("scan job %d: %w", id, err)
	}
	return j, nil
}

// UpdateJob is the idempotent setter for {status, workerId, result},
// spec.md §4.1 "Update job status". Status assignment is last-writer-wins
// on a single-row UPDATE, per spec.md §4.1.1.
func (s *Store) UpdateJob(ctx context.Context, id int64, status model.JobStatus, workerID *int64, result []byte) error {
	now := time.Now().UTC()
	var resultArg any
	if result != nil {
		resultArg = string(result)
	}
	var workerArg any
	if workerID != nil {
		workerArg = *workerID
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, worker_id = COALESCE(?, worker_id), result = COALESCE(?, result), updated_at = ? WHERE id = ?`,
		string(status), workerArg, resultArg, now.Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	return nil
}

// ClaimNextPending implements the claim protocol, spec.md §4.1.2:
//  1. Select the oldest Job where status = pending and type = T.
//  2. If none, return (nil, nil).
//  3. Atomically: UPDATE that Job SET status = processing WHERE id = candidate
//     AND status = pending.
//  4. If the update affected zero rows, another worker won; return (nil, nil).
//  5. Otherwise return the claimed Job.
//
// Grounded in navjo3-queuectl/internal/store/jobs.go's ClaimOne: a
// SERIALIZABLE transaction wrapping a SELECT-then-conditional-UPDATE,
// decided by RowsAffected rather than a second read.
func (s *Store) ClaimNextPending(ctx context.Context, typ model.JobType) (*model.Job, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var candidateID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE status = ? AND type = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		string(model.JobStatusPending), string(typ),
	).Scan(&candidateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusProcessing), now.Format(timeLayout), candidateID, string(model.JobStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another worker won the race; this is not an error.
		return nil, nil
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, type, payload, status, worker_id, result, created_at, updated_at FROM jobs WHERE id = ?`, candidateID)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("scan claimed job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return j, nil
}

// JobStats returns aggregate counts per status and per type, spec.md §4.1
// "Get stats" and invariant 4 (sum of per-status counts equals the total).
func (s *Store) JobStats(ctx context.Context) (map[model.JobStatus]int, map[model.JobType]int, int, error) {
	byStatus := map[model.JobStatus]int{}
	byType := map[model.JobType]int{}
	total := 0

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("job stats by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, nil, 0, fmt.Errorf("scan job status count: %w", err)
		}
		byStatus[model.JobStatus(status)] = count
		total += count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM jobs GROUP BY type`)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("job stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, nil, 0, fmt.Errorf("scan job type count: %w", err)
		}
		byType[model.JobType(typ)] = count
	}

	return byStatus, byType, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		j             model.Job
		payload       string
		result        sql.NullString
		workerID      sql.NullInt64
		createdAt     string
		updatedAt     string
		status        string
		typ           string
	)
	if err := row.Scan(&j.ID, &typ, &payload, &status, &workerID, &result, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	if workerID.Valid {
		id := workerID.Int64
		j.WorkerID = &id
	}
	var err error
	if j.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &j, nil
}
