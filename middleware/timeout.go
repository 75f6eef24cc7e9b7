package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec/job"
)

// Timeout returns middleware that bounds handler execution. byHandler
// sets a deadline per handler type; other handlers get fallback. A zero
// duration means no deadline. When the deadline passes the context is
// cancelled and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger, fallback time.Duration, byHandler map[string]time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d, ok := byHandler[j.HandlerType]
		if !ok {
			d = fallback
		}
		if d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
