// Package worker is the node executor: acquisition loops that claim due
// work, a bounded hand-off queue, and a fixed set of workers that run each
// job through middleware and report the outcome to the job manager.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
	"github.com/xraph/asyncexec/middleware"
)

// Executor runs a single claimed job through middleware and its handler,
// then persists the outcome: Complete on success, HandleFailure on error.
type Executor struct {
	manager *manager.Manager
	mw      middleware.Middleware
	logger  *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(m *manager.Manager, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		manager: m,
		mw:      middleware.Chain(mws...),
		logger:  logger,
	}
}

// Execute runs j and records the outcome. It returns the handler's error
// when the handler failed, or the storage error when the outcome could not
// be persisted. A version conflict while persisting is logged and
// swallowed: another node holds a newer copy of the job, and the sweeper
// or the next acquisition cycle settles it.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	start := time.Now()
	err := e.mw(ctx, j, func(ctx context.Context) error {
		return e.manager.Execute(ctx, j)
	})
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, j, err)
	}
	return e.handleSuccess(ctx, j, elapsed)
}

func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	out, err := e.manager.Complete(ctx, j)
	if err != nil {
		e.logger.Error("failed to complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("handler_type", j.HandlerType),
			slog.String("error", err.Error()),
		)
		return err
	}
	if out == job.Conflict {
		e.logConflict("complete", j)
		return nil
	}

	e.manager.Extensions().EmitJobCompleted(ctx, j, elapsed)
	return nil
}

func (e *Executor) handleFailure(ctx context.Context, j *job.Job, cause error) error {
	out, err := e.manager.HandleFailure(ctx, j, cause)
	if err != nil {
		e.logger.Error("failed to record job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("handler_type", j.HandlerType),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return err
	}
	if out == job.Conflict {
		e.logConflict("handle failure", j)
	}
	return cause
}

func (e *Executor) logConflict(op string, j *job.Job) {
	e.logger.Warn("job changed by another node, outcome dropped",
		slog.String("op", op),
		slog.String("job_id", j.ID.String()),
		slog.Int64("version", j.Version),
	)
}
