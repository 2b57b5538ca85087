package script

import (
	"context"
	"log/slog"
)

// ResourceGateForTest exposes resourceGate for black-box-adjacent testing
// without making the gate itself part of the package's public surface.
func ResourceGateForTest(ctx context.Context, cfg GateConfig, notify WaitNotifier) error {
	return resourceGate(ctx, cfg, slog.Default(), notify)
}
