package middleware

import (
	"context"
	"time"

	"github.com/xraph/asyncexec/job"
)

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps the execution of one claimed job. It must call next
// unless it decides the job fails without running.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws into one Middleware; mws[0] is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, final Handler) error {
		var step func(i int) Handler
		step = func(i int) Handler {
			if i == len(mws) {
				return final
			}
			return func(ctx context.Context) error {
				return mws[i](ctx, j, step(i+1))
			}
		}
		return step(0)(ctx)
	}
}

// lastAttempt reports whether a failure of this run moves j to the dead
// letter state instead of scheduling a retry.
func lastAttempt(j *job.Job) bool {
	return j.Retries <= 0
}

// lag is how long j waited past its due date, or since it was created
// when it had none. Negative values are clamped to zero.
func lag(j *job.Job, start time.Time) time.Duration {
	from := j.CreatedAt
	if j.DueDate != nil {
		from = *j.DueDate
	}
	if from.IsZero() || start.Before(from) {
		return 0
	}
	return start.Sub(from)
}
