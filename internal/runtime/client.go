// Package runtime implements the Worker Runtime (C7): a per-worker polling
// loop and typed job execution, spec.md §4.4. The poll loop and graceful
// Start/Stop shape, and the success/failure handling, are both stripped of
// in-process concurrency (pool of goroutines → one sequential loop per OS
// process, spec.md §5) and of retry/backoff/DLQ (spec.md's failed status is
// terminal; there is no dead-letter queue).
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

// CoordinatorClient is the HTTP client a worker uses to read/mutate its own
// state and claim jobs via the Dispatch Coordinator's API, spec.md §6 — a
// worker never touches the primary database directly (spec.md §5, "workers
// mutate it exclusively via the coordinator's HTTP API").
type CoordinatorClient struct {
	baseURL string
	client  *http.Client
}

// NewCoordinatorClient creates a CoordinatorClient bound to baseURL.
func NewCoordinatorClient(baseURL string, client *http.Client) *CoordinatorClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoordinatorClient{baseURL: baseURL, client: client}
}

// GetWorker reads a Worker record, spec.md §6 "GET /api/workers/:id".
func (c *CoordinatorClient) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	var body struct {
		Worker *model.Worker `json:"worker"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/workers/%d", id), nil, &body); err != nil {
		return nil, err
	}
	return body.Worker, nil
}

// UpdateWorkerStatus PATCHes a Worker's status, spec.md §6 "PATCH
// /api/workers/:id".
func (c *CoordinatorClient) UpdateWorkerStatus(ctx context.Context, id int64, status model.WorkerStatus) error {
	req := map[string]string{"status": string(status)}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/workers/%d", id), req, nil)
}

// ClaimNextPending calls the claim endpoint, spec.md §6 "GET
// /api/jobs/next/:type". A nil return means no pending job, not an error.
func (c *CoordinatorClient) ClaimNextPending(ctx context.Context, typ model.JobType) (*model.Job, error) {
	var body struct {
		Job *model.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/next/%s", typ), nil, &body); err != nil {
		return nil, err
	}
	return body.Job, nil
}

// UpdateJob PATCHes {status, workerId, result}, spec.md §6 "PATCH
// /api/jobs/:id".
func (c *CoordinatorClient) UpdateJob(ctx context.Context, id int64, status model.JobStatus, workerID int64, result json.RawMessage) error {
	req := map[string]any{"status": string(status), "workerId": workerID}
	if result != nil {
		req["result"] = json.RawMessage(result)
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/jobs/%d", id), req, nil)
}

func (c *CoordinatorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindTransient, "coordinator request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperror.NotFoundf("%s %s: not found", method, path)
	}
	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return apperror.Wrap(apperror.KindTransient, fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), fmt.Errorf("%s", errBody.Error))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
