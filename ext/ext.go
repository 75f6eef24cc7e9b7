// Package ext defines the extension system of the job executor.
// Extensions are notified of job lifecycle events (created, acquired,
// completed, retried, dead-lettered) and can react to them with metrics,
// audit trails or alerts.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/asyncexec/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a new timer or executable job is persisted.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobAcquired is called after this node claims a job.
type JobAcquired interface {
	OnJobAcquired(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job's handler succeeded and the job
// was removed.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a failed job was moved back to the timer
// state with a backoff due date.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, cause error, nextRunAt time.Time) error
}

// JobDeadLettered is called when a job exhausted its retries.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, cause error) error
}

// JobReactivated is called when a dead-letter job is made executable
// again.
type JobReactivated interface {
	OnJobReactivated(ctx context.Context, j *job.Job) error
}

// JobSuspended is called when a job is hidden from acquisition.
type JobSuspended interface {
	OnJobSuspended(ctx context.Context, j *job.Job) error
}

// JobActivated is called when a suspended job is restored.
type JobActivated interface {
	OnJobActivated(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Node hooks
// ──────────────────────────────────────────────────

// LockReleased is called when a claim is cleared without running the
// job: unacquired by its owner or reset by the expired-lock sweeper.
type LockReleased interface {
	OnLockReleased(ctx context.Context, j *job.Job, previousOwner string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
