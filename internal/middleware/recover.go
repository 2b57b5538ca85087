// Package middleware holds cross-cutting wrappers applied around adapter
// execution: a defer/recover shape retargeted from a generic job handler
// chain to the closed adapter.Adapter union (C8/C9/webhook/C10) the worker
// runtime dispatches to.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

// RecoverAdapter wraps a around a panic guard, so a single adapter bug
// (a nil-pointer dereference in a hand-written script or gateway call)
// fails the one job instead of killing the worker process.
func RecoverAdapter(typ model.JobType, a adapter.Adapter, logger *slog.Logger) adapter.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &recoveringAdapter{typ: typ, inner: a, logger: logger}
}

type recoveringAdapter struct {
	typ    model.JobType
	inner  adapter.Adapter
	logger *slog.Logger
}

func (r *recoveringAdapter) Execute(ctx context.Context, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := string(debug.Stack())
			r.logger.Error("adapter panicked",
				slog.String("job_type", string(r.typ)),
				slog.Any("panic", p),
				slog.String("stack", stack),
			)
			err = apperror.New(apperror.KindAdapterFailure, fmt.Sprintf("adapter for %s panicked: %v", r.typ, p))
		}
	}()
	return r.inner.Execute(ctx, payload)
}
