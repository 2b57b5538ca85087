// Package adapter defines the closed union of job executors spec.md §9's
// Design Notes prescribe: "replace runtime selection over duck-typed
// adapters with a closed union (EmailAdapter, MessagingAdapter,
// WebhookAdapter, ScriptAdapter); dispatch by job type at the worker boot
// site." The registry below is a concurrency-safe name→handler map,
// collapsed from a user-extensible generic registry to a fixed map over
// the five closed JobTypes, since spec.md's type set is not
// user-extensible.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/taskgrid/dispatch/internal/model"
)

// Adapter is the interface every variant in the closed union implements:
// {execute(payload) -> result | error}.
type Adapter interface {
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Registry maps a JobType to the Adapter that handles it. Safe for
// concurrent reads after construction; Register is expected to run during
// worker boot, before the poll loop starts.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.JobType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.JobType]Adapter)}
}

// Register binds typ to a. Called once per type at worker boot.
func (r *Registry) Register(typ model.JobType, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[typ] = a
}

// Get returns the Adapter for typ, or an error if none is registered. The
// worker runtime calls it for each claimed job and fails that job when it
// returns an error.
func (r *Registry) Get(typ model.JobType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[typ]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for job type %s", typ)
	}
	return a, nil
}
