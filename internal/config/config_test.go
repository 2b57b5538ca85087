package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", c.RedisAddr)
	require.Equal(t, 80.0, c.ResourceCPUThreshold)
	require.Equal(t, 3, c.ResourceCheckRetries)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("DISPATCH_SERVER_PORT", "9090")
	t.Setenv("DISPATCH_SHUTDOWN_TIMEOUT", "5s")

	c, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", c.RedisAddr)
	require.Equal(t, 9090, c.ServerPort)
	require.Equal(t, 5*time.Second, c.ShutdownTimeout)
}

func TestLoad_InvalidInt(t *testing.T) {
	t.Setenv("DISPATCH_SERVER_PORT", "not-a-number")
	defer os.Unsetenv("DISPATCH_SERVER_PORT")

	_, err := config.Load()
	require.Error(t, err)
}
