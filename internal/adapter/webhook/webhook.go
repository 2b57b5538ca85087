// Package webhook implements the SMS/NOTIFICATION dispatch path: POST the
// job payload to a per-type configured URL with headers {Content-Type,
// X-Job-Type, X-Worker-ID}, spec.md §4.1 step 3. Follows the same
// http.Client/context-deadline shape as internal/adapter/messaging's post
// helper, since both are "submit structured payload to an external HTTP
// endpoint" concerns.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

// Adapter posts job payloads verbatim to a fixed URL bound at construction,
// one instance per job type (SMS, NOTIFICATION).
type Adapter struct {
	client  *http.Client
	url     string
	jobType model.JobType
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a webhook Adapter for jobType, posting to url.
func New(client *http.Client, url string, jobType model.JobType) *Adapter {
	if client == nil {
		client = &http.Client{}
	}
	return &Adapter{client: client, url: url, jobType: jobType}
}

// Execute posts payload to the configured URL. workerID is threaded through
// a context value set by the worker runtime before dispatch.
func (a *Adapter) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if a.url == "" {
		return nil, apperror.New(apperror.KindFatal, fmt.Sprintf("no webhook URL configured for job type %s", a.jobType))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Type", string(a.jobType))
	if workerID, ok := WorkerIDFromContext(ctx); ok {
		req.Header.Set("X-Worker-ID", strconv.FormatInt(workerID, 10))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindAdapterFailure, "webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, apperror.New(apperror.KindAdapterFailure,
			fmt.Sprintf("webhook %s returned status %d", a.url, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook response body: %w", err)
	}

	// The provider's own response body is the job result (scenario S1: an
	// SMS webhook returning {ok:true} must surface as the job's result, not
	// a synthesized status object). Fall back to a status object only when
	// the provider sent nothing or non-JSON back.
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body), nil
	}

	b, err := json.Marshal(map[string]any{"status": resp.StatusCode})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook result: %w", err)
	}
	return b, nil
}

// workerIDKey is the context key the worker runtime sets before dispatching
// to an adapter, so SMS/NOTIFICATION webhooks can populate X-Worker-ID.
type workerIDKey struct{}

// ContextWithWorkerID returns a context carrying workerID for Execute to read.
func ContextWithWorkerID(ctx context.Context, workerID int64) context.Context {
	return context.WithValue(ctx, workerIDKey{}, workerID)
}

// WorkerIDFromContext extracts a worker id set by ContextWithWorkerID.
func WorkerIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(workerIDKey{}).(int64)
	return v, ok
}
