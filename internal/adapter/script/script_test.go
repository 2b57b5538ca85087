package script_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/script"
	"github.com/taskgrid/dispatch/internal/ratelimit"
)

func newTestStore(t *testing.T) *script.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := script.Open(filepath.Join(dir, "tasks.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755))
}

func permissiveGate() script.GateConfig {
	return script.GateConfig{CPUThreshold: 100, MemThreshold: 100, CheckInterval: time.Millisecond, CheckRetries: 1}
}

func TestScript_RunSuccess(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", "#!/bin/sh\necho hello\nexit 0\n")

	st := newTestStore(t)
	a := script.New(dir, st, permissiveGate(), nil, script.RateLimit{}, nil)

	res, err := a.Run(context.Background(), script.RunRequest{TaskID: "t1", Script: "ok.sh"})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)

	rec, err := st.GetTaskRecord(context.Background(), "t1")
	require.NoError(t, err)
	require.False(t, rec.IsRunning)
}

func TestScript_RunFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fail.sh", "#!/bin/sh\nexit 3\n")

	st := newTestStore(t)
	a := script.New(dir, st, permissiveGate(), nil, script.RateLimit{}, nil)

	res, err := a.Run(context.Background(), script.RunRequest{TaskID: "t2", Script: "fail.sh"})
	require.Error(t, err)
	require.Equal(t, 3, res.ExitCode)
}

func TestScript_ValidatesRequest(t *testing.T) {
	st := newTestStore(t)
	a := script.New(t.TempDir(), st, permissiveGate(), nil, script.RateLimit{}, nil)

	_, err := a.Run(context.Background(), script.RunRequest{})
	require.Error(t, err)
}

type denyingLimiter struct{}

func (denyingLimiter) Allow(ctx context.Context, p ratelimit.Params) (bool, error) {
	return false, nil
}

func TestScript_RateLimitDenyBlocksRun(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", "#!/bin/sh\necho hello\nexit 0\n")

	st := newTestStore(t)
	rl := script.RateLimit{Enabled: true, Params: ratelimit.Params{Key: "bucket:test", MaxTokens: 1, RefillRate: 1, KeyExpiry: 60}}
	a := script.New(dir, st, permissiveGate(), denyingLimiter{}, rl, nil)

	_, err := a.Run(context.Background(), script.RunRequest{TaskID: "t3", Script: "ok.sh"})
	require.Error(t, err)
}
