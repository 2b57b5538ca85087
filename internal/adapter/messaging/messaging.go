// Package messaging implements the Messaging Adapter (C9): a primary HTTP
// gateway with external fallback, per-endpoint serialized sends, spec.md
// §4.7. Design Notes §9 prescribes replacing the "chained future" idiom
// with "a per-endpoint single-slot task queue (unbounded FIFO with one
// active consumer)" — realized here as one consumer goroutine per base URL
// reading a Go channel buffered to 4096 sends (Send blocks while it is
// full), the same worker-per-queue shape as a
// generic dequeue loop, retargeted from dequeuing jobs to draining one
// endpoint's send queue in submission order (testable property 6).
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/apperror"
)

// SendRequest is {number|groupId, message, baseUrl?, delayMs?}, spec.md
// §4.7.
type SendRequest struct {
	Number   string `json:"number,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	Message  string `json:"message"`
	BaseURL  string `json:"baseUrl,omitempty"`
	DelayMs  int    `json:"delayMs,omitempty"`
}

// SendResult reports the outcome of a send.
type SendResult struct {
	UsedSecondary bool `json:"usedSecondary"`
}

// task is one queued send, with a channel the caller blocks on for the
// result — this is the single-slot task queue's unit of work.
type task struct {
	ctx     context.Context
	req     SendRequest
	resultC chan taskResult
}

type taskResult struct {
	res *SendResult
	err error
}

// endpoint owns the buffered task channel (4096 slots; Send blocks while
// it is full) and the single consumer goroutine serializing sends to one
// base URL, plus the in-process token bucket that paces that consumer's
// sends.
type endpoint struct {
	tasks       chan *task
	initialized bool
	limiter     *rate.Limiter
}

// Adapter dispatches sends through per-base-URL endpoints, falling back to
// a secondary bearer-credentialed gateway on primary failure.
type Adapter struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint

	httpClient *http.Client
	defaultURL string
	defaultDelay time.Duration

	secondaryURL   string
	secondaryToken string

	logger *slog.Logger

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates an Adapter. defaultURL/defaultDelay apply when a SendRequest
// omits BaseURL/DelayMs.
func New(httpClient *http.Client, defaultURL string, defaultDelay time.Duration, secondaryURL, secondaryToken string, logger *slog.Logger) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		endpoints:      make(map[string]*endpoint),
		httpClient:     httpClient,
		defaultURL:     defaultURL,
		defaultDelay:   defaultDelay,
		secondaryURL:   secondaryURL,
		secondaryToken: secondaryToken,
		logger:         logger,
		closeCh:        make(chan struct{}),
	}
}

// Send submits req and blocks until its link in the endpoint's chain
// completes — callers observe submission-order delivery per base URL
// (testable property 6).
func (a *Adapter) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = a.defaultURL
	}
	if baseURL == "" {
		return nil, apperror.New(apperror.KindValidation, "messaging send requires a baseUrl")
	}
	if req.Number == "" && req.GroupID == "" {
		return nil, apperror.New(apperror.KindValidation, "messaging send requires number or groupId")
	}

	ep := a.endpointFor(baseURL)

	t := &task{ctx: ctx, req: req, resultC: make(chan taskResult, 1)}
	select {
	case ep.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.resultC:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Adapter) endpointFor(baseURL string) *endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep, ok := a.endpoints[baseURL]
	if ok {
		return ep
	}
	ep = &endpoint{tasks: make(chan *task, 4096), limiter: rate.NewLimiter(rate.Inf, 1)}
	a.endpoints[baseURL] = ep
	go a.consume(baseURL, ep)
	return ep
}

// consume is the single active consumer per endpoint, processing tasks
// strictly in submission order.
func (a *Adapter) consume(baseURL string, ep *endpoint) {
	for {
		select {
		case t, ok := <-ep.tasks:
			if !ok {
				return
			}
			res, err := a.process(t.ctx, baseURL, ep, t.req)
			t.resultC <- taskResult{res: res, err: err}
		case <-a.closeCh:
			return
		}
	}
}

// process implements spec.md §4.7's per-link algorithm.
func (a *Adapter) process(ctx context.Context, baseURL string, ep *endpoint, req SendRequest) (*SendResult, error) {
	if !ep.initialized {
		ready, err := a.probeStatus(ctx, baseURL)
		if err != nil {
			a.logger.Warn("endpoint status probe failed", slog.String("base_url", baseURL), slog.String("error", err.Error()))
		}
		ep.initialized = ready
	}

	delay := time.Duration(req.DelayMs) * time.Millisecond
	if req.DelayMs == 0 {
		delay = a.defaultDelay
	}
	if delay > 0 {
		// One token per delay interval paces this endpoint's consumer;
		// SetLimit lets a later request with a different delayMs retune the
		// same bucket rather than spinning up a new one.
		ep.limiter.SetLimit(rate.Every(delay))
		if err := ep.limiter.Wait(ctx); err != nil {
			return nil, ctx.Err()
		}
	}

	path := "/send-message"
	if req.GroupID != "" {
		path = "/send-group-message"
	}

	// Same key on both legs of one logical send: if the primary attempt
	// actually landed before the connection error that triggered fallback,
	// the secondary gateway can recognize the retry instead of delivering
	// twice.
	idempotencyKey := uuid.NewString()
	headers := map[string]string{"Idempotency-Key": idempotencyKey}

	if err := a.post(ctx, baseURL+path, req, headers); err != nil {
		a.logger.Warn("primary messaging gateway failed, falling back to secondary",
			slog.String("base_url", baseURL), slog.String("error", err.Error()))

		if secErr := a.postSecondary(ctx, req, idempotencyKey); secErr != nil {
			return nil, apperror.Wrap(apperror.KindAdapterFailure, "messaging send failed on primary and secondary",
				fmt.Errorf("primary: %v, secondary: %v", err, secErr))
		}
		return &SendResult{UsedSecondary: true}, nil
	}

	return &SendResult{}, nil
}

func (a *Adapter) probeStatus(ctx context.Context, baseURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return false, fmt.Errorf("build status request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode status response: %w", err)
	}
	return body.Status == "ready" || body.Status == "connecting", nil
}

func (a *Adapter) post(ctx context.Context, url string, body any, headers map[string]string) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("non-success status %d", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) postSecondary(ctx context.Context, req SendRequest, idempotencyKey string) error {
	if a.secondaryURL == "" {
		return fmt.Errorf("no secondary gateway configured")
	}
	headers := map[string]string{"Authorization": "Bearer " + a.secondaryToken, "Idempotency-Key": idempotencyKey}
	return a.post(ctx, a.secondaryURL, req, headers)
}

// Close stops all endpoint consumers.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() { close(a.closeCh) })
}

// jobAdapter adapts *Adapter to the closed-union adapter.Adapter interface
// for the WHATSAPP job type.
type jobAdapter struct {
	*Adapter
}

var _ adapter.Adapter = (*jobAdapter)(nil)

// AsJobAdapter wraps a as an adapter.Adapter for registry.Register.
func AsJobAdapter(a *Adapter) adapter.Adapter {
	return &jobAdapter{Adapter: a}
}

func (j *jobAdapter) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "invalid messaging payload", err)
	}
	res, err := j.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal messaging result: %w", err)
	}
	return b, nil
}
