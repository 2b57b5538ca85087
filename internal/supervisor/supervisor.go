// Package supervisor implements the Worker Supervisor (C5): spawns,
// monitors, restarts, and scales worker OS processes, built from os/exec
// lifecycle idioms plus a graceful Start/Stop shape and
// navjo3-queuectl/internal/cli/worker_start.go's signal-driven shutdown,
// applied to child processes rather than goroutines per spec.md §4.2.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/store"
)

// handle is the in-memory mapping from worker id to live child-process
// state, spec.md §4.2 "Holds an in-memory mapping from worker id to live
// child-process handle."
type handle struct {
	id      int64
	typ     model.JobType
	cmd     *exec.Cmd
	stopped bool
}

// Supervisor owns every worker process this coordinator instance spawned.
type Supervisor struct {
	mu       sync.Mutex
	handles  map[int64]*handle
	store    store.WorkerStore
	ext      *ext.Registry
	logger   *slog.Logger

	binaryPath     string
	coordinatorURL string
}

// New creates a Supervisor. binaryPath is the workerd executable to spawn;
// coordinatorURL is passed to each worker so it knows where to poll.
func New(st store.WorkerStore, extensions *ext.Registry, logger *slog.Logger, binaryPath, coordinatorURL string) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	return &Supervisor{
		handles:        make(map[int64]*handle),
		store:          st,
		ext:            extensions,
		logger:         logger,
		binaryPath:     binaryPath,
		coordinatorURL: coordinatorURL,
	}
}

// Init reads all Worker records and spawns a child process for each,
// spec.md §4.2 "init".
func (s *Supervisor) Init(ctx context.Context) error {
	workers, err := s.store.ListAllWorkers(ctx)
	if err != nil {
		return fmt.Errorf("list workers for init: %w", err)
	}
	for _, w := range workers {
		s.startWorker(w.ID, w.Type)
	}
	return nil
}

// CreateWorker registers a new Worker record, then starts its process,
// spec.md §4.2 "createWorker".
func (s *Supervisor) CreateWorker(ctx context.Context, typ model.JobType) (*model.Worker, error) {
	w, err := s.store.CreateWorker(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("register worker: %w", err)
	}
	s.startWorker(w.ID, w.Type)
	return w, nil
}

// startWorker spawns the child process for (id, typ), wires its
// stdout/stderr to structured logs, and on non-zero exit automatically
// respawns with the same id and type — a crash-recovery loop with no
// backoff cap, spec.md §4.2's Open Question.
func (s *Supervisor) startWorker(id int64, typ model.JobType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &handle{id: id, typ: typ}
	s.handles[id] = h
	s.spawn(h)
}

func (s *Supervisor) spawn(h *handle) {
	cmd := exec.Command(s.binaryPath,
		"--worker-id", strconv.FormatInt(h.id, 10),
		"--worker-type", string(h.typ),
		"--coordinator-url", s.coordinatorURL,
	)
	cmd.Stdout = slogWriter{logger: s.logger, workerID: h.id, stream: "stdout"}
	cmd.Stderr = slogWriter{logger: s.logger, workerID: h.id, stream: "stderr"}
	h.cmd = cmd

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed to start worker process", slog.Int64("worker_id", h.id), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("started worker process", slog.Int64("worker_id", h.id), slog.String("type", string(h.typ)), slog.Int("pid", cmd.Process.Pid))

	go s.watch(h)
}

// watch blocks on the child process's exit and respawns on non-zero exit.
func (s *Supervisor) watch(h *handle) {
	err := h.cmd.Wait()

	s.mu.Lock()
	stopped := h.stopped
	current, known := s.handles[h.id]
	s.mu.Unlock()

	if stopped || !known || current != h {
		return
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	if exitCode == 0 {
		s.logger.Info("worker process exited cleanly, not restarting", slog.Int64("worker_id", h.id))
		return
	}

	s.logger.Warn("worker process crashed, respawning", slog.Int64("worker_id", h.id), slog.Int("exit_code", exitCode))

	s.mu.Lock()
	s.spawn(h)
	s.mu.Unlock()

	w := &model.Worker{ID: h.id, Type: h.typ}
	s.ext.EmitWorkerRestarted(context.Background(), w, exitCode)
}

// StopWorker sends a termination signal to the worker's process, drops the
// handle, and returns whether a handle existed, spec.md §4.2 "stopWorker".
func (s *Supervisor) StopWorker(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if ok {
		h.stopped = true
		delete(s.handles, id)
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if h.cmd != nil && h.cmd.Process != nil {
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn("failed to signal worker process", slog.Int64("worker_id", id), slog.String("error", err.Error()))
		}
	}
	if err := s.store.DeactivateWorker(ctx, id); err != nil {
		s.logger.Warn("failed to deactivate worker record", slog.Int64("worker_id", id), slog.String("error", err.Error()))
	}
	return true, nil
}

// ScaleWorkers creates or stops workers of typ to reach desired, spec.md
// §4.2 "scaleWorkers": scale-down stops the first (current − desired) in
// existing order (oldest-first by row order). Not atomic with concurrent
// create/stop calls; callers are expected to serialize.
func (s *Supervisor) ScaleWorkers(ctx context.Context, typ model.JobType, desired int) error {
	existing, err := s.store.ListWorkers(ctx, typ)
	if err != nil {
		return fmt.Errorf("list workers of type %s: %w", typ, err)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].ID < existing[j].ID })

	current := len(existing)
	if current < desired {
		for i := 0; i < desired-current; i++ {
			if _, err := s.CreateWorker(ctx, typ); err != nil {
				return fmt.Errorf("scale up: %w", err)
			}
		}
		return nil
	}
	if current > desired {
		for i := 0; i < current-desired; i++ {
			if _, err := s.StopWorker(ctx, existing[i].ID); err != nil {
				return fmt.Errorf("scale down: %w", err)
			}
		}
	}
	return nil
}

// Shutdown stops every known worker, spec.md §4.2 "shutdown".
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.StopWorker(ctx, id); err != nil {
			s.logger.Warn("failed to stop worker during shutdown", slog.Int64("worker_id", id), slog.String("error", err.Error()))
		}
	}
}

// slogWriter adapts an io.Writer onto structured logs, one line per Write
// call, spec.md §4.2 "wire stdout/stderr to structured logs".
type slogWriter struct {
	logger   *slog.Logger
	workerID int64
	stream   string
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.logger.Info("worker output", slog.Int64("worker_id", w.workerID), slog.String("stream", w.stream), slog.String("line", string(p)))
	return len(p), nil
}
