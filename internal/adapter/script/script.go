package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/ratelimit"
)

// maxOutputBytes bounds how much of a child process's combined
// stdout/stderr is retained, grounded in mchenetz-SPLAI's
// runSandboxedCommand bytes.Buffer pattern, capped here rather than left
// unbounded since task log output is persisted to SQLite.
const maxOutputBytes = 1 << 20

// RunRequest is {taskId, script, args}, the payload a CRONJOB job carries.
type RunRequest struct {
	TaskID string   `json:"taskId"`
	Script string   `json:"script"`
	Args   []string `json:"args,omitempty"`
}

// RunResult is {exitCode, output, error}, spec.md §4.8's resolve shape.
type RunResult struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
}

// RateLimiter is the subset of C1 a script run consumes before spawning
// the child process, spec.md §4.5: "Consumed by C7 cron adapters before
// each outbound call to rate-limited external providers." Scripts are
// this system's only direct line to such providers, so the gate sits here
// rather than in the worker runtime.
type RateLimiter interface {
	Allow(ctx context.Context, p ratelimit.Params) (bool, error)
}

// RateLimit configures the bucket a script run is gated against. A zero
// value (Enabled == false) disables the gate entirely — most scripts touch
// nothing rate-limited and shouldn't pay for a KV round trip.
type RateLimit struct {
	Params  ratelimit.Params
	Enabled bool
}

// Adapter runs named scripts from a fixed directory as gated child
// processes, persisting task-scheduler state to a Store.
type Adapter struct {
	scriptsDir string
	store      *Store
	gate       GateConfig
	limiter    RateLimiter
	rateLimit  RateLimit
	logger     *slog.Logger
}

var _ adapter.Adapter = (*jobAdapter)(nil)

// New creates a script Adapter. limiter/rateLimit may be left zero-valued
// to run unthrottled.
func New(scriptsDir string, store *Store, gate GateConfig, limiter RateLimiter, rateLimit RateLimit, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{scriptsDir: scriptsDir, store: store, gate: gate, limiter: limiter, rateLimit: rateLimit, logger: logger}
}

// Run executes req.Script (resolved against scriptsDir unless absolute),
// gated by resourceGate, spec.md §4.8. Task-scheduler state is written
// once the child has started (StartRun) and when it exits (FinishRun).
// No log row exists while the resource gate waits, so no `waiting`
// message is recorded, and a run refused by the gate or the rate limiter
// leaves no record in the store.
func (a *Adapter) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.TaskID == "" || req.Script == "" {
		return nil, apperror.New(apperror.KindValidation, "script run requires taskId and script")
	}

	var logID int64
	notify := func(attempt int, cpu, mem float64) {
		if logID == 0 {
			return
		}
		msg := fmt.Sprintf("waiting: attempt %d cpu=%.1f%% mem=%.1f%%", attempt, cpu, mem)
		if err := a.store.AppendWaiting(ctx, logID, msg); err != nil {
			a.logger.Warn("failed to record waiting log", slog.String("error", err.Error()))
		}
	}

	if err := resourceGate(ctx, a.gate, a.logger, notify); err != nil {
		return nil, apperror.Wrap(apperror.KindResourceExhaustion, "script runner could not acquire host resources", err)
	}

	if a.limiter != nil && a.rateLimit.Enabled {
		allowed, err := a.limiter.Allow(ctx, a.rateLimit.Params)
		if err != nil {
			a.logger.Warn("rate limit check failed, letting the run through", slog.String("error", err.Error()))
		} else if !allowed {
			return nil, apperror.New(apperror.KindTransient, "rate limit denied, retry after a short delay")
		}
	}

	path := req.Script
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.scriptsDir, path)
	}

	cmd, cleanup := buildCommand(ctx, path, req.Args)
	defer cleanup()

	var out bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &out, limit: maxOutputBytes}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, apperror.Wrap(apperror.KindAdapterFailure, "script failed to start", err)
	}
	pid := cmd.Process.Pid

	logID, err := a.store.StartRun(ctx, req.TaskID, pid)
	if err != nil {
		a.logger.Warn("failed to record task start", slog.String("error", err.Error()))
	}

	runErr := cmd.Wait()

	result := &RunResult{Output: out.String()}
	status := "success"
	if runErr != nil {
		status = "failed"
		result.Error = runErr.Error()
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	if err := a.store.FinishRun(ctx, req.TaskID, logID, status, result.Output); err != nil {
		a.logger.Warn("failed to record task finish", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return result, apperror.Wrap(apperror.KindAdapterFailure, "script exited non-zero", runErr)
	}
	return result, nil
}

// buildCommand spawns the interpreter for .js scripts, or a shell command
// otherwise, per spec.md §4.8's "spawn as a shell command for non-.js
// scripts, or the interpreter for .js".
func buildCommand(ctx context.Context, path string, args []string) (*exec.Cmd, func()) {
	var cmd *exec.Cmd
	if strings.HasSuffix(path, ".js") {
		cmd = exec.CommandContext(ctx, "node", append([]string{path}, args...)...)
	} else {
		full := append([]string{path}, args...)
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", strings.Join(quoteAll(full), " "))
	}
	return cmd, func() {}
}

func quoteAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
	}
	return out
}

// boundedWriter caps how much is retained in buf, discarding the
// remainder once limit is reached — the child still runs to completion,
// only the retained transcript is truncated.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}

// jobAdapter adapts *Adapter to the closed-union adapter.Adapter interface
// for the CRONJOB job type.
type jobAdapter struct {
	*Adapter
}

// AsJobAdapter wraps a as an adapter.Adapter for registry.Register.
func AsJobAdapter(a *Adapter) adapter.Adapter {
	return &jobAdapter{Adapter: a}
}

func (j *jobAdapter) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "invalid script payload", err)
	}
	res, err := j.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal script result: %w", err)
	}
	return b, nil
}
