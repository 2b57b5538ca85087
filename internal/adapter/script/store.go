// Package script implements the Script Runner (C10): resource-gated
// child-process execution of named scripts, with task-scheduler record and
// log persistence, spec.md §4.8 and §3's Task-scheduler-record entry. The
// store below follows the same Open/WAL/embed.FS migration shape as
// internal/store/sqlite, against the separate database spec.md §6 names
// ("task-scheduler DB path") rather than the primary Job/Worker database.
package script

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// TaskRecord is the {task id, is-running, start-running, pid} row spec.md
// §3 names, owned externally and mutated by C10.
type TaskRecord struct {
	TaskID       string
	IsRunning    bool
	StartRunning *time.Time
	PID          *int
}

// LogRow is one {task id, start-time, end-time, status, output} entry in
// the task's log stream.
type LogRow struct {
	ID        int64
	TaskID    string
	StartTime time.Time
	EndTime   *time.Time
	Status    string
	Output    string
}

// Store persists TaskRecord and LogRow state in a dedicated SQLite
// database.
type Store struct {
	db *sql.DB
}

// Open opens the task-scheduler database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task-scheduler db %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Migrate applies the embedded migration set.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		b, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun marks taskID as running with pid, clearing any prior terminal
// state, and opens a new `running` log row.
func (s *Store) StartRun(ctx context.Context, taskID string, pid int) (int64, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_records (task_id, is_running, start_running, pid)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET is_running=1, start_running=excluded.start_running, pid=excluded.pid
	`, taskID, now.Format(time.RFC3339Nano), pid)
	if err != nil {
		return 0, fmt.Errorf("upsert task record: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO task_logs (task_id, start_time, end_time, status, output)
		VALUES (?, ?, NULL, 'running', '')
	`, taskID, now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert task log: %w", err)
	}
	return res.LastInsertId()
}

// AppendWaiting updates the log row logID with a `waiting`
// status message, spec.md §4.8's per-retry gate notification.
func (s *Store) AppendWaiting(ctx context.Context, logID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_logs SET status='waiting', output=? WHERE id=?
	`, message, logID)
	if err != nil {
		return fmt.Errorf("append waiting log: %w", err)
	}
	return nil
}

// FinishRun clears is_running/start_running/pid on the task record and
// closes the log row with a terminal status and output, spec.md §4.8.
func (s *Store) FinishRun(ctx context.Context, taskID string, logID int64, status, output string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_records SET is_running=0, start_running=NULL, pid=NULL WHERE task_id=?
	`, taskID)
	if err != nil {
		return fmt.Errorf("clear task record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE task_logs SET end_time=?, status=?, output=? WHERE id=?
	`, now.Format(time.RFC3339Nano), status, output, logID)
	if err != nil {
		return fmt.Errorf("close task log: %w", err)
	}
	return nil
}

// GetTaskRecord returns the current record for taskID, or nil if none
// exists yet.
func (s *Store) GetTaskRecord(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, is_running, start_running, pid FROM task_records WHERE task_id=?
	`, taskID)

	var rec TaskRecord
	var startRunning *string
	var pid *int
	if err := row.Scan(&rec.TaskID, &rec.IsRunning, &startRunning, &pid); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan task record: %w", err)
	}
	rec.PID = pid
	if startRunning != nil {
		t, err := time.Parse(time.RFC3339Nano, *startRunning)
		if err == nil {
			rec.StartRunning = &t
		}
	}
	return &rec, nil
}
