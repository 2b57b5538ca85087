package script_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/script"
)

func TestResourceGate_ExhaustsRetriesWhenThresholdsImpossible(t *testing.T) {
	cfg := script.GateConfig{CPUThreshold: -1, MemThreshold: -1, CheckInterval: time.Millisecond, CheckRetries: 2}

	attempts := 0
	err := script.ResourceGateForTest(context.Background(), cfg, func(attempt int, cpu, mem float64) {
		attempts++
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestResourceGate_PassesWhenThresholdsPermissive(t *testing.T) {
	cfg := script.GateConfig{CPUThreshold: 100, MemThreshold: 100, CheckInterval: time.Millisecond, CheckRetries: 0}
	err := script.ResourceGateForTest(context.Background(), cfg, nil)
	require.NoError(t, err)
}
