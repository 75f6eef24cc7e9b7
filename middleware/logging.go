package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec/job"
)

// Logging logs each run at Debug. Failures log at Info, or at Warn when
// the job has no retries left and is about to be dead-lettered.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []slog.Attr{
			slog.String("job_id", j.ID.String()),
			slog.String("handler_type", j.HandlerType),
			slog.String("process_instance_id", j.ProcessInstanceID),
			slog.String("lock_owner", j.LockOwner),
			slog.Int("retries", j.Retries),
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			logger.LogAttrs(ctx, slog.LevelDebug, "job completed", attrs...)
		case lastAttempt(j):
			logger.LogAttrs(ctx, slog.LevelWarn, "job failed on last attempt",
				append(attrs, slog.String("error", err.Error()))...)
		default:
			logger.LogAttrs(ctx, slog.LevelInfo, "job failed",
				append(attrs, slog.String("error", err.Error()))...)
		}
		return err
	}
}
