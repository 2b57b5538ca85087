// Package queue implements the Queue Transport (C2): a durable per-type
// FIFO backlog plus pub/sub notifications, backed by Redis. Grounded in the
// teacher's store/redis/job.go (TxPipeline usage, Cmdable wrapping) and
// store/redis/store.go (the New(client, opts...) + WithLogger constructor
// shape), adapted from Hash+SortedSet job storage to the plain
// LPUSH/RPOP list + channel pub/sub spec.md §4.3 specifies.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/taskgrid/dispatch/internal/model"
)

// Handler reacts to a completion event read off a subscribed channel.
type Handler func(ctx context.Context, channel string, payload []byte)

// Transport is the Redis-backed Queue Transport.
type Transport struct {
	client redis.Cmdable
	logger *slog.Logger

	pubsub   *redis.PubSub
	handlers map[string]Handler
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// New wraps a redis.Cmdable as a Transport.
func New(client redis.Cmdable, opts ...Option) *Transport {
	t := &Transport{
		client:   client,
		logger:   slog.Default(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func backlogKey(typ model.JobType) string {
	return fmt.Sprintf("jobs:%s", typ)
}

// AddJob LPUSHes a JSON-encoded backlog entry onto jobs:<type> and
// publishes job:new with {type}, spec.md §4.3 "addJob". The backlog write
// and the Job Store write are not jointly atomic (spec.md §4.3's note);
// callers are expected to have already persisted the Job Store row.
func (t *Transport) AddJob(ctx context.Context, id int64, typ model.JobType, payload json.RawMessage) error {
	entry := model.BacklogEntry{JobID: id, Type: typ, Payload: payload}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal backlog entry: %w", err)
	}
	if err := t.client.LPush(ctx, backlogKey(typ), b).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", backlogKey(typ), err)
	}

	evt, err := json.Marshal(model.JobNewEvent{Type: typ})
	if err != nil {
		return fmt.Errorf("marshal job:new event: %w", err)
	}
	if err := t.client.Publish(ctx, model.ChannelJobNew, evt).Err(); err != nil {
		return fmt.Errorf("publish job:new: %w", err)
	}
	return nil
}

// GetNextJob RPOPs the oldest backlog entry for typ (FIFO), spec.md §4.3
// "getNextJob". A nil, nil return means the backlog is empty — this is a
// hint only; the Job Store's ClaimNextPending is the source of truth.
func (t *Transport) GetNextJob(ctx context.Context, typ model.JobType) (*model.BacklogEntry, error) {
	b, err := t.client.RPop(ctx, backlogKey(typ)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rpop %s: %w", backlogKey(typ), err)
	}
	var entry model.BacklogEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal backlog entry: %w", err)
	}
	return &entry, nil
}

// PublishJobComplete publishes worker:job-complete, spec.md §4.3
// "jobComplete".
func (t *Transport) PublishJobComplete(ctx context.Context, jobID, workerID int64, result json.RawMessage) error {
	b, err := json.Marshal(model.JobCompleteEvent{JobID: jobID, WorkerID: workerID, Result: result})
	if err != nil {
		return fmt.Errorf("marshal job-complete event: %w", err)
	}
	if err := t.client.Publish(ctx, model.ChannelWorkerJobComplete, b).Err(); err != nil {
		return fmt.Errorf("publish worker:job-complete: %w", err)
	}
	return nil
}

// PublishJobFailed publishes worker:job-failed, spec.md §4.3 "jobFailed".
func (t *Transport) PublishJobFailed(ctx context.Context, jobID, workerID int64, errMsg string) error {
	b, err := json.Marshal(model.JobFailedEvent{JobID: jobID, WorkerID: workerID, Error: errMsg})
	if err != nil {
		return fmt.Errorf("marshal job-failed event: %w", err)
	}
	if err := t.client.Publish(ctx, model.ChannelWorkerJobFailed, b).Err(); err != nil {
		return fmt.Errorf("publish worker:job-failed: %w", err)
	}
	return nil
}

// OnHandler registers a handler for a completion channel. Must be called
// before Init.
func (t *Transport) OnHandler(channel string, h Handler) {
	t.handlers[channel] = h
}

// Init subscribes to every channel that has a handler registered via
// OnHandler, and invokes those handlers as events arrive, spec.md §4.3
// "init". It returns once the subscription is made; delivery runs in a
// background goroutine until ctx is cancelled.
func (t *Transport) Init(ctx context.Context) error {
	channels := make([]string, 0, len(t.handlers))
	for ch := range t.handlers {
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return nil
	}

	sub, ok := t.client.(redisSubscriber)
	if !ok {
		return fmt.Errorf("redis client does not support Subscribe")
	}
	t.pubsub = sub.Subscribe(ctx, channels...)

	ch := t.pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if h, exists := t.handlers[msg.Channel]; exists {
					h(ctx, msg.Channel, []byte(msg.Payload))
				}
			}
		}
	}()
	return nil
}

// Subscribe subscribes to job:new for the worker runtime's wakeup channel
// (spec.md §4.4), returning the raw message channel so the caller's poll
// loop can select on it alongside its ticker.
func (t *Transport) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func(), error) {
	sub, ok := t.client.(redisSubscriber)
	if !ok {
		return nil, nil, fmt.Errorf("redis client does not support Subscribe")
	}
	ps := sub.Subscribe(ctx, channel)
	return ps.Channel(), func() { ps.Close() }, nil
}

// Close releases the subscription opened by Init, if any.
func (t *Transport) Close() error {
	if t.pubsub != nil {
		return t.pubsub.Close()
	}
	return nil
}

// redisSubscriber is satisfied by *redis.Client; narrowed out of
// redis.Cmdable so Transport can be constructed from either a *redis.Client
// or a test double that implements the command subset it actually uses.
type redisSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}
