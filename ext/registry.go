package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// collect appends e to hooks when it implements H.
func collect[H any](hooks []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		hooks = append(hooks, entry[H]{name: name, hook: h})
	}
	return hooks
}

// Registry holds registered extensions and fans lifecycle events out
// to them. Hooks are type-cached at registration so emit calls iterate
// only over extensions that implement the relevant interface.
//
// Register is not safe for concurrent use with the Emit methods; register
// every extension before starting the executor.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated      []entry[JobCreated]
	jobAcquired     []entry[JobAcquired]
	jobCompleted    []entry[JobCompleted]
	jobRetrying     []entry[JobRetrying]
	jobDeadLettered []entry[JobDeadLettered]
	jobReactivated  []entry[JobReactivated]
	jobSuspended    []entry[JobSuspended]
	jobActivated    []entry[JobActivated]
	lockReleased    []entry[LockReleased]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobCreated = collect(r.jobCreated, name, e)
	r.jobAcquired = collect(r.jobAcquired, name, e)
	r.jobCompleted = collect(r.jobCompleted, name, e)
	r.jobRetrying = collect(r.jobRetrying, name, e)
	r.jobDeadLettered = collect(r.jobDeadLettered, name, e)
	r.jobReactivated = collect(r.jobReactivated, name, e)
	r.jobSuspended = collect(r.jobSuspended, name, e)
	r.jobActivated = collect(r.jobActivated, name, e)
	r.lockReleased = collect(r.lockReleased, name, e)
	r.shutdown = collect(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

// ──────────────────────────────────────────────────
// Job lifecycle emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, j); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitJobAcquired notifies all extensions that implement JobAcquired.
func (r *Registry) EmitJobAcquired(ctx context.Context, j *job.Job) {
	for _, e := range r.jobAcquired {
		if err := e.hook.OnJobAcquired(ctx, j); err != nil {
			r.logHookError("OnJobAcquired", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, cause error, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, cause, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDeadLettered notifies all extensions that implement
// JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, cause error) {
	for _, e := range r.jobDeadLettered {
		if err := e.hook.OnJobDeadLettered(ctx, j, cause); err != nil {
			r.logHookError("OnJobDeadLettered", e.name, err)
		}
	}
}

// EmitJobReactivated notifies all extensions that implement
// JobReactivated.
func (r *Registry) EmitJobReactivated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobReactivated {
		if err := e.hook.OnJobReactivated(ctx, j); err != nil {
			r.logHookError("OnJobReactivated", e.name, err)
		}
	}
}

// EmitJobSuspended notifies all extensions that implement JobSuspended.
func (r *Registry) EmitJobSuspended(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSuspended {
		if err := e.hook.OnJobSuspended(ctx, j); err != nil {
			r.logHookError("OnJobSuspended", e.name, err)
		}
	}
}

// EmitJobActivated notifies all extensions that implement JobActivated.
func (r *Registry) EmitJobActivated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobActivated {
		if err := e.hook.OnJobActivated(ctx, j); err != nil {
			r.logHookError("OnJobActivated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Node emitters
// ──────────────────────────────────────────────────

// EmitLockReleased notifies all extensions that implement LockReleased.
func (r *Registry) EmitLockReleased(ctx context.Context, j *job.Job, previousOwner string) {
	for _, e := range r.lockReleased {
		if err := e.hook.OnLockReleased(ctx, j, previousOwner); err != nil {
			r.logHookError("OnLockReleased", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the
// job pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
