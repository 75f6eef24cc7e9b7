package middleware

import (
	"context"

	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/scope"
)

// Scope returns middleware that restores the job's tenant, process
// instance and execution into the context.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = scope.With(ctx, scope.Scope{
			TenantID:          j.TenantID,
			ProcessInstanceID: j.ProcessInstanceID,
			ExecutionID:       j.ExecutionID,
		})
		return next(ctx)
	}
}
