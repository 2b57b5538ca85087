// Command workerd is the Worker Runtime (C7): one OS process bound to
// exactly one job type, spawned by the Worker Supervisor with
// --worker-id/--worker-type/--coordinator-url flags, spec.md §4.2's
// "spawn" step. Grounded in
// mchenetz-SPLAI/worker/cmd/worker-agent/main.go's
// signal.NotifyContext + direct component construction + rt.Run(ctx) shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/adapter/email"
	"github.com/taskgrid/dispatch/internal/adapter/messaging"
	"github.com/taskgrid/dispatch/internal/adapter/script"
	"github.com/taskgrid/dispatch/internal/adapter/webhook"
	"github.com/taskgrid/dispatch/internal/config"
	"github.com/taskgrid/dispatch/internal/logging"
	"github.com/taskgrid/dispatch/internal/middleware"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
	"github.com/taskgrid/dispatch/internal/ratelimit"
	"github.com/taskgrid/dispatch/internal/runtime"
)

func main() {
	logger := logging.New("workerd")

	var (
		workerID       int64
		workerType     string
		coordinatorURL string
	)
	flag.Int64Var(&workerID, "worker-id", 0, "the Worker record id this process serves")
	flag.StringVar(&workerType, "worker-type", "", "the job type this process is bound to")
	flag.StringVar(&coordinatorURL, "coordinator-url", "", "the coordinator's base HTTP URL")
	flag.Parse()

	if workerID == 0 || workerType == "" || coordinatorURL == "" {
		logger.Error("worker-id, worker-type, and coordinator-url are all required")
		os.Exit(1)
	}

	typ := model.JobType(workerType)
	if !model.ValidJobTypes[typ] {
		logger.Error("unknown worker type", slog.String("type", workerType))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(workerID, typ, coordinatorURL, cfg, logger); err != nil {
		logger.Error("workerd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(workerID int64, typ model.JobType, coordinatorURL string, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()
	q := queue.New(redisClient, queue.WithLogger(logger))

	registry, closeAdapter, err := buildRegistry(typ, cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("build adapter for worker type %s: %w", typ, err)
	}
	if closeAdapter != nil {
		defer closeAdapter()
	}

	client := runtime.NewCoordinatorClient(coordinatorURL, &http.Client{Timeout: 10 * time.Second})
	rt := runtime.New(workerID, typ, client, q, registry, cfg.PollInterval, logger)

	logger.Info("worker starting", slog.Int64("worker_id", workerID), slog.String("type", string(typ)))
	return rt.Run(ctx)
}

// buildRegistry constructs a registry holding exactly one adapter, bound
// to typ, recovery-wrapped so a panicking adapter never takes the poll
// loop down with it. The second return value releases what the adapter
// owns (the email and task-scheduler SQLite stores, or the messaging
// adapter's per-endpoint consumer goroutines); it is nil when there is
// nothing to close.
func buildRegistry(typ model.JobType, cfg config.Config, redisClient redis.Cmdable, logger *slog.Logger) (*adapter.Registry, func(), error) {
	registry := adapter.NewRegistry()

	switch typ {
	case model.JobTypeEmail:
		store, err := email.Open(cfg.EmailConfigDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open email store: %w", err)
		}
		if err := store.Migrate(context.Background()); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate email store: %w", err)
		}
		logs, closeStores := store, func() { store.Close() }
		if cfg.EmailLogDBPath != "" && cfg.EmailLogDBPath != cfg.EmailConfigDBPath {
			logStore, err := email.Open(cfg.EmailLogDBPath)
			if err != nil {
				store.Close()
				return nil, nil, fmt.Errorf("open email log store: %w", err)
			}
			if err := logStore.Migrate(context.Background()); err != nil {
				logStore.Close()
				store.Close()
				return nil, nil, fmt.Errorf("migrate email log store: %w", err)
			}
			logs, closeStores = logStore, func() { logStore.Close(); store.Close() }
		}
		a := email.New(store, logs, logger)
		registry.Register(typ, middleware.RecoverAdapter(typ, email.AsJobAdapter(a), logger))
		return registry, closeStores, nil

	case model.JobTypeWhatsApp:
		delay := time.Duration(cfg.MessagingDefaultDelayMs) * time.Millisecond
		a := messaging.New(nil, cfg.MessagingGatewayURL, delay, cfg.SecondaryGatewayURL, cfg.SecondaryGatewayToken, logger)
		registry.Register(typ, middleware.RecoverAdapter(typ, messaging.AsJobAdapter(a), logger))
		return registry, a.Close, nil

	case model.JobTypeSMS:
		a := webhook.New(nil, cfg.SMSWebhookURL, typ)
		registry.Register(typ, middleware.RecoverAdapter(typ, a, logger))
		return registry, nil, nil

	case model.JobTypeNotification:
		a := webhook.New(nil, cfg.NotificationWebhookURL, typ)
		registry.Register(typ, middleware.RecoverAdapter(typ, a, logger))
		return registry, nil, nil

	case model.JobTypeCronjob:
		store, err := script.Open(cfg.TaskSchedulerDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open task scheduler store: %w", err)
		}
		if err := store.Migrate(context.Background()); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate task scheduler store: %w", err)
		}
		gate := script.GateConfig{
			CPUThreshold:  cfg.ResourceCPUThreshold,
			MemThreshold:  cfg.ResourceMemThreshold,
			CheckInterval: cfg.ResourceCheckInterval,
			CheckRetries:  cfg.ResourceCheckRetries,
		}
		limiter := ratelimit.New(redisClient)
		rateLimit := script.RateLimit{
			Enabled: cfg.ScriptRateLimitMaxTokens > 0,
			Params: ratelimit.Params{
				Key:        cfg.ScriptRateLimitKey,
				MaxTokens:  cfg.ScriptRateLimitMaxTokens,
				RefillRate: cfg.ScriptRateLimitRefillRate,
				KeyExpiry:  cfg.ScriptRateLimitKeyExpiry,
			},
		}
		a := script.New(cfg.ScriptsDir, store, gate, limiter, rateLimit, logger)
		registry.Register(typ, middleware.RecoverAdapter(typ, script.AsJobAdapter(a), logger))
		return registry, func() { store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("no adapter wiring for job type %s", typ)
	}
}
