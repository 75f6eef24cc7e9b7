package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/asyncexec/job"
)

// meterName is the instrumentation scope name for asyncexec metrics.
const meterName = "github.com/xraph/asyncexec"

// Metrics returns metrics middleware on the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter records, per handler type and tenant:
//
//   - asyncexec.job.duration: handler time in seconds, by status
//   - asyncexec.job.executions: runs, by status and whether the run was the
//     last one before dead-lettering
//   - asyncexec.job.lag: seconds between the due date (or creation) and the
//     start of the run
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram("asyncexec.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter("asyncexec.job.executions",
		metric.WithDescription("Job executions"),
		metric.WithUnit("{execution}"),
	)
	lagHist, _ := meter.Float64Histogram("asyncexec.job.lag",
		metric.WithDescription("Delay between a job becoming due and its execution"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		base := []attribute.KeyValue{
			attribute.String("handler_type", j.HandlerType),
			attribute.String("tenant_id", j.TenantID),
		}
		lagHist.Record(ctx, lag(j, start).Seconds(), metric.WithAttributes(base...))

		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := append(base,
			attribute.String("status", status),
			attribute.Bool("last_attempt", lastAttempt(j)),
		)
		duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs[:3]...))
		executions.Add(ctx, 1, metric.WithAttributes(attrs...))
		return err
	}
}
