package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobCreated      = (*MetricsExtension)(nil)
	_ ext.JobAcquired     = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.JobReactivated  = (*MetricsExtension)(nil)
	_ ext.JobSuspended    = (*MetricsExtension)(nil)
	_ ext.JobActivated    = (*MetricsExtension)(nil)
	_ ext.LockReleased    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/asyncexec/observability"

// MetricsExtension records system-wide lifecycle counters. Every counter
// carries handler_type and tenant_id attributes.
type MetricsExtension struct {
	JobCreated      metric.Int64Counter
	JobAcquired     metric.Int64Counter
	JobCompleted    metric.Int64Counter
	JobRetried      metric.Int64Counter
	JobDeadLettered metric.Int64Counter
	JobReactivated  metric.Int64Counter
	JobSuspended    metric.Int64Counter
	JobActivated    metric.Int64Counter
	LockReleased    metric.Int64Counter
	JobDuration     metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// The API returns a noop instrument alongside any error.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("asyncexec.job.completed.duration",
		metric.WithDescription("Execution time of completed jobs in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobCreated:      counter("asyncexec.job.created", "Jobs persisted"),
		JobAcquired:     counter("asyncexec.job.acquired", "Jobs claimed by this node"),
		JobCompleted:    counter("asyncexec.job.completed", "Jobs that succeeded"),
		JobRetried:      counter("asyncexec.job.retried", "Failed jobs rescheduled for retry"),
		JobDeadLettered: counter("asyncexec.job.deadlettered", "Jobs that exhausted their retries"),
		JobReactivated:  counter("asyncexec.job.reactivated", "Dead-letter jobs made executable"),
		JobSuspended:    counter("asyncexec.job.suspended", "Jobs hidden from acquisition"),
		JobActivated:    counter("asyncexec.job.activated", "Suspended jobs restored"),
		LockReleased:    counter("asyncexec.job.lock_released", "Claims released without running the job"),
		JobDuration:     duration,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func attrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("handler_type", j.HandlerType),
		attribute.String("tenant_id", j.TenantID),
	)
}

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobAcquired implements ext.JobAcquired.
func (m *MetricsExtension) OnJobAcquired(ctx context.Context, j *job.Job) error {
	m.JobAcquired.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Add(ctx, 1, attrs(j))
	m.JobDuration.Record(ctx, elapsed.Seconds(), attrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ error, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, _ error) error {
	m.JobDeadLettered.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobReactivated implements ext.JobReactivated.
func (m *MetricsExtension) OnJobReactivated(ctx context.Context, j *job.Job) error {
	m.JobReactivated.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobSuspended implements ext.JobSuspended.
func (m *MetricsExtension) OnJobSuspended(ctx context.Context, j *job.Job) error {
	m.JobSuspended.Add(ctx, 1, attrs(j))
	return nil
}

// OnJobActivated implements ext.JobActivated.
func (m *MetricsExtension) OnJobActivated(ctx context.Context, j *job.Job) error {
	m.JobActivated.Add(ctx, 1, attrs(j))
	return nil
}

// OnLockReleased implements ext.LockReleased.
func (m *MetricsExtension) OnLockReleased(ctx context.Context, j *job.Job, _ string) error {
	m.LockReleased.Add(ctx, 1, attrs(j))
	return nil
}
