// Package telemetry provides the otel-based MetricsExtension that records
// system-wide lifecycle metrics: an otel Meter driving
// Float64Histogram/Int64Counter instruments, wired as an ext.Extension
// that updates counters off lifecycle hooks, exported to Prometheus via
// go.opentelemetry.io/otel/exporters/prometheus.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskgrid/dispatch/internal/ext"
	"github.com/taskgrid/dispatch/internal/model"
)

const meterName = "github.com/taskgrid/dispatch"

// MetricsExtension records job and worker lifecycle metrics via the global
// otel MeterProvider. If no MeterProvider is configured the instruments
// are noop and this extension becomes inert.
type MetricsExtension struct {
	jobEnqueued  metric.Int64Counter
	jobCompleted metric.Int64Counter
	jobFailed    metric.Int64Counter
	jobDuration  metric.Float64Histogram

	workerCreated   metric.Int64Counter
	workerRestarted metric.Int64Counter
}

var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued   = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.WorkerCreated = (*MetricsExtension)(nil)
	_ ext.WorkerRestarted = (*MetricsExtension)(nil)
)

// NewMetricsExtension builds instruments on the global otel Meter.
func NewMetricsExtension() (*MetricsExtension, error) {
	meter := otel.Meter(meterName)

	jobEnqueued, err := meter.Int64Counter("dispatch.job.enqueued",
		metric.WithDescription("Total jobs admitted by the coordinator"))
	if err != nil {
		return nil, err
	}
	jobCompleted, err := meter.Int64Counter("dispatch.job.completed",
		metric.WithDescription("Total jobs completed successfully"))
	if err != nil {
		return nil, err
	}
	jobFailed, err := meter.Int64Counter("dispatch.job.failed",
		metric.WithDescription("Total jobs that reached a terminal failed state"))
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("dispatch.job.duration",
		metric.WithDescription("Time from job creation to completion in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	workerCreated, err := meter.Int64Counter("dispatch.worker.created",
		metric.WithDescription("Total workers created"))
	if err != nil {
		return nil, err
	}
	workerRestarted, err := meter.Int64Counter("dispatch.worker.restarted",
		metric.WithDescription("Total worker crash-restarts"))
	if err != nil {
		return nil, err
	}

	return &MetricsExtension{
		jobEnqueued:     jobEnqueued,
		jobCompleted:    jobCompleted,
		jobFailed:       jobFailed,
		jobDuration:     jobDuration,
		workerCreated:   workerCreated,
		workerRestarted: workerRestarted,
	}, nil
}

func (m *MetricsExtension) Name() string { return "telemetry.metrics" }

func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *model.Job) {
	m.jobEnqueued.Add(ctx, 1, metric.WithAttributes(typeAttr(j.Type)))
}

func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *model.Job, elapsed time.Duration) {
	m.jobCompleted.Add(ctx, 1, metric.WithAttributes(typeAttr(j.Type)))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(typeAttr(j.Type)))
}

func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *model.Job, reason string) {
	m.jobFailed.Add(ctx, 1, metric.WithAttributes(typeAttr(j.Type)))
}

func (m *MetricsExtension) OnWorkerCreated(ctx context.Context, w *model.Worker) {
	m.workerCreated.Add(ctx, 1, metric.WithAttributes(typeAttr(w.Type)))
}

func (m *MetricsExtension) OnWorkerRestarted(ctx context.Context, w *model.Worker, exitCode int) {
	m.workerRestarted.Add(ctx, 1, metric.WithAttributes(typeAttr(w.Type)))
}

func typeAttr(t model.JobType) attribute.KeyValue {
	return attribute.String("job_type", string(t))
}
