package email_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/email"
)

func newTestStore(t *testing.T) *email.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "email.db")
	st, err := email.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLoadModuleConfig_FallsBackToGlobal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutModuleConfig(ctx, email.ModuleConfig{
		Module: "Global",
		Main:   email.TransportConfig{Host: "smtp.example.com", Port: 587},
	}))

	cfg, err := st.LoadModuleConfig(ctx, "billing")
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com", cfg.Main.Host)
}

func TestLoadModuleConfig_PrefersOwnRowOverGlobal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutModuleConfig(ctx, email.ModuleConfig{
		Module: "Global",
		Main:   email.TransportConfig{Host: "global.example.com", Port: 587},
	}))
	require.NoError(t, st.PutModuleConfig(ctx, email.ModuleConfig{
		Module: "billing",
		Main:   email.TransportConfig{Host: "billing.example.com", Port: 25},
	}))

	cfg, err := st.LoadModuleConfig(ctx, "billing")
	require.NoError(t, err)
	require.Equal(t, "billing.example.com", cfg.Main.Host)
}

func TestLoadModuleConfig_RoundTripsBackupTransport(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutModuleConfig(ctx, email.ModuleConfig{
		Module:          "billing",
		FailoverEnabled: true,
		Main:            email.TransportConfig{Host: "main.example.com", Port: 587},
		Backup:          &email.TransportConfig{Host: "backup.example.com", Port: 2525},
	}))

	cfg, err := st.LoadModuleConfig(ctx, "billing")
	require.NoError(t, err)
	require.NotNil(t, cfg.Backup)
	require.Equal(t, "backup.example.com", cfg.Backup.Host)
}

func TestLoadModuleConfig_ErrorsWithNoGlobalFallback(t *testing.T) {
	st := newTestStore(t)
	_, err := st.LoadModuleConfig(context.Background(), "billing")
	require.Error(t, err)
}

func TestLogAttempt_Succeeds(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.LogAttempt(context.Background(), "billing", "a@example.com", "sent", "via main"))
}
