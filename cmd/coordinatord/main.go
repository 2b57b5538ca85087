// Command coordinatord runs the Dispatch Coordinator (C6): the HTTP API,
// the Worker Supervisor (C5), and the optional CRONJOB schedule. Adapters
// are built by the workerd processes, not here. Wiring shape grounded in
// damir5-kosarica/services/price-service/cmd/server/main.go's
// http.Server/ListenAndServe/signal.Notify/Shutdown sequence, translated
// from zerolog to log/slog and from gin.DebugMode switching to a single
// ReleaseMode server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskgrid/dispatch/internal/adapter/script"
	"github.com/taskgrid/dispatch/internal/api"
	"github.com/taskgrid/dispatch/internal/config"
	"github.com/taskgrid/dispatch/internal/coordinator"
	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/logging"
	"github.com/taskgrid/dispatch/internal/model"
	"github.com/taskgrid/dispatch/internal/queue"
	"github.com/taskgrid/dispatch/internal/store/sqlite"
	"github.com/taskgrid/dispatch/internal/supervisor"
	"github.com/taskgrid/dispatch/internal/telemetry"
)

func main() {
	logger := logging.New("coordinatord")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("coordinatord exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate primary store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()

	q := queue.New(redisClient, queue.WithLogger(logger))

	extensions := ext.NewRegistry(logger)
	metricsHandler, err := installMetrics(extensions)
	if err != nil {
		return fmt.Errorf("install metrics: %w", err)
	}

	sup := supervisor.New(st, extensions, logger, cfg.WorkerBinaryPath, cfg.CoordinatorURL)
	coord := coordinator.New(st, q, sup, extensions, logger)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	if err := sup.Init(ctx); err != nil {
		return fmt.Errorf("respawn existing workers: %w", err)
	}

	scheduler, err := startScriptScheduler(cfg, coord, logger)
	if err != nil {
		return fmt.Errorf("start script scheduler: %w", err)
	}
	if scheduler != nil {
		defer scheduler.Stop(context.Background())
	}

	apiHandler := api.New(coord, metricsHandler,
		api.HealthCheck{Name: "sqlite", Ping: st.Ping},
		api.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	).Handler()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      apiHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// spec.md §5: supervisor shutdown, then queue transport close, then
	// database close — workers stop dequeuing before the backlog they'd
	// read from goes away, and the backlog goes away before the store
	// backing it does.
	sup.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shut down", slog.String("error", err.Error()))
	}
	if err := q.Close(); err != nil {
		logger.Warn("failed to close queue transport", slog.String("error", err.Error()))
	}

	return nil
}

func installMetrics(extensions *ext.Registry) (http.Handler, error) {
	handler, err := telemetry.InstallPrometheusProvider()
	if err != nil {
		return nil, err
	}
	metricsExt, err := telemetry.NewMetricsExtension()
	if err != nil {
		return nil, err
	}
	extensions.Register(metricsExt)
	return handler, nil
}

// startScriptScheduler fires CRONJOB jobs on the operator-configured cron
// entries by posting them through the coordinator's normal CreateJob path
// — the scheduler is a producer, not an executor; the Script adapter and
// its rate-limit gate run in workerd, not here.
func startScriptScheduler(cfg config.Config, coord *coordinator.Coordinator, logger *slog.Logger) (*script.Scheduler, error) {
	if cfg.CronSchedule == "" {
		return nil, nil
	}

	type entryConfig struct {
		Expr   string   `json:"expr"`
		TaskID string   `json:"taskId"`
		Script string   `json:"script"`
		Args   []string `json:"args,omitempty"`
	}
	var entries []entryConfig
	if err := json.Unmarshal([]byte(cfg.CronSchedule), &entries); err != nil {
		return nil, fmt.Errorf("parse DISPATCH_CRON_SCHEDULE: %w", err)
	}

	enqueue := func(ctx context.Context, req script.RunRequest) error {
		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal scheduled run request: %w", err)
		}
		_, err = coord.CreateJob(ctx, model.JobTypeCronjob, payload)
		return err
	}

	sched := script.NewScheduler(enqueue, logger)
	for _, e := range entries {
		if _, err := sched.AddEntry(script.ScheduleEntry{
			Expr: e.Expr,
			Req:  script.RunRequest{TaskID: e.TaskID, Script: e.Script, Args: e.Args},
		}); err != nil {
			return nil, fmt.Errorf("add schedule entry %q: %w", e.TaskID, err)
		}
	}
	sched.Start()
	logger.Info("script scheduler started", slog.Int("entries", len(entries)))
	return sched, nil
}
