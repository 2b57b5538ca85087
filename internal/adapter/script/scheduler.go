package script

import (
	"context"
	"log/slog"

	cronlib "github.com/robfig/cron/v3"
)

// EnqueueFunc submits a CRONJOB RunRequest for execution, breaking the
// import cycle back to the coordinator.
type EnqueueFunc func(ctx context.Context, req RunRequest) error

// ScheduleEntry binds a cron expression to a RunRequest fired on that
// schedule.
type ScheduleEntry struct {
	Expr string
	Req  RunRequest
}

// Scheduler fires ScheduleEntry values on their cron schedule. Single-node
// only — no leader-election loop over a cluster store to ensure only one
// of several coordinator replicas fires a given entry; spec.md's Non-goals
// rule out cross-node clustering, so every entry always fires locally.
type Scheduler struct {
	cron    *cronlib.Cron
	enqueue EnqueueFunc
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler that calls enqueue for each fired entry.
func NewScheduler(enqueue EnqueueFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cronlib.NewParser(
		cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
	)
	return &Scheduler{
		cron:    cronlib.New(cronlib.WithParser(parser)),
		enqueue: enqueue,
		logger:  logger,
	}
}

// AddEntry registers entry on its cron expression. Returns the entry ID for
// later removal.
func (s *Scheduler) AddEntry(entry ScheduleEntry) (cronlib.EntryID, error) {
	return s.cron.AddFunc(entry.Expr, func() {
		ctx := context.Background()
		if err := s.enqueue(ctx, entry.Req); err != nil {
			s.logger.Error("scheduled script enqueue failed",
				slog.String("task_id", entry.Req.TaskID), slog.String("error", err.Error()))
		}
	})
}

// RemoveEntry unregisters a previously added entry.
func (s *Scheduler) RemoveEntry(id cronlib.EntryID) {
	s.cron.Remove(id)
}

// Start launches the scheduler's tick goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight fire to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
