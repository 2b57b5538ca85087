package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// GateConfig bounds the resource gate's thresholds and retry budget,
// spec.md §4.8.
type GateConfig struct {
	CPUThreshold   float64
	MemThreshold   float64
	CheckInterval  time.Duration
	CheckRetries   int
}

// WaitNotifier is notified once per retry attempt while the gate is
// waiting for resources to free up, so the caller can record a `waiting`
// task-scheduler log message, spec.md §4.8.
type WaitNotifier func(attempt int, cpu, mem float64)

// resourceGate probes host CPU and memory against cfg's thresholds,
// retrying up to cfg.CheckRetries times. Returns nil once both metrics are
// under threshold, ctx's error if ctx ends while waiting, or a plain error
// once the retry budget is exhausted (Adapter.Run wraps it as
// KindResourceExhaustion).
func resourceGate(ctx context.Context, cfg GateConfig, logger *slog.Logger, notify WaitNotifier) error {
	for attempt := 0; ; attempt++ {
		cpu, mem := cpuLoadPercent(), memUsedPercent()
		if cpu <= cfg.CPUThreshold && mem <= cfg.MemThreshold {
			return nil
		}

		if attempt >= cfg.CheckRetries {
			return fmt.Errorf("resource gate exhausted after %d attempts (cpu=%.1f%% mem=%.1f%%)", attempt, cpu, mem)
		}

		logger.Info("resource gate waiting",
			slog.Int("attempt", attempt), slog.Float64("cpu_percent", cpu), slog.Float64("mem_percent", mem))
		if notify != nil {
			notify(attempt, cpu, mem)
		}

		select {
		case <-time.After(cfg.CheckInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
