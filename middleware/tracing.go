package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/asyncexec/job"
)

// tracerName is the instrumentation scope name for asyncexec tracing.
const tracerName = "github.com/xraph/asyncexec"

// Tracing returns tracing middleware on the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer wraps each run in a span named after the handler type.
// A failed last attempt adds a "job.exhausted" event to the span.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		attrs := []attribute.KeyValue{
			attribute.String("asyncexec.job.id", j.ID.String()),
			attribute.String("asyncexec.job.handler_type", j.HandlerType),
			attribute.Int("asyncexec.job.retries", j.Retries),
			attribute.Bool("asyncexec.job.exclusive", j.Exclusive),
			attribute.String("asyncexec.job.lock_owner", j.LockOwner),
			attribute.Float64("asyncexec.job.lag_seconds", lag(j, start).Seconds()),
			attribute.String("asyncexec.process_instance_id", j.ProcessInstanceID),
			attribute.String("asyncexec.execution_id", j.ExecutionID),
			attribute.String("asyncexec.tenant_id", j.TenantID),
		}
		ctx, span := tracer.Start(ctx, "asyncexec.job "+j.HandlerType,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithTimestamp(start),
		)
		defer span.End()

		err := next(ctx)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if lastAttempt(j) {
			span.AddEvent("job.exhausted")
		}
		return err
	}
}
