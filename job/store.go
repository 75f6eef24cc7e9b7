package job

import (
	"context"
	"time"

	"github.com/xraph/asyncexec/id"
)

// Query filters job listings. Zero-valued fields do not filter.
type Query struct {
	// State filters by logical state.
	State State
	// ProcessInstanceID filters by owning process instance.
	ProcessInstanceID string
	// ExecutionID filters by owning execution.
	ExecutionID string
	// TenantID filters by tenant.
	TenantID string
	// HandlerType filters by handler type.
	HandlerType string
	// DueBefore keeps jobs with a due date at or before this time.
	DueBefore *time.Time
	// DueAfter keeps jobs with a due date strictly after this time.
	DueAfter *time.Time
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for job records. Every mutation
// of an existing record is guarded by the record's Version: the write is
// applied only when the stored version equals j.Version, in which case the
// stored version becomes j.Version+1 and j.Version is advanced in place.
// A mismatch, including a record that no longer exists, yields Conflict
// and leaves storage untouched.
type Store interface {
	// InsertJob persists a new record. A zero Version is stored as 1.
	InsertJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob writes every field of j, guarded by j.Version.
	UpdateJob(ctx context.Context, j *Job) (Outcome, error)

	// DeleteJob removes j, guarded by j.Version.
	DeleteJob(ctx context.Context, j *Job) (Outcome, error)

	// FindAcquirableJobs returns up to limit jobs of the category whose due
	// date is at or before now and which are unlocked or whose lock
	// expired, oldest due date first.
	FindAcquirableJobs(ctx context.Context, category Category, now time.Time, limit int) ([]*Job, error)

	// FindExpiredLockJobs returns up to limit jobs whose lock expiration
	// lies before now, in any state.
	FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ListJobs returns jobs matching q ordered by creation time.
	ListJobs(ctx context.Context, q Query) ([]*Job, error)

	// CountJobs returns the number of jobs matching q, ignoring paging.
	CountJobs(ctx context.Context, q Query) (int64, error)

	// LockScope leases the exclusive-execution scope of a process instance
	// to owner until the given time. It is applied only when no unexpired
	// lease exists, whoever holds it. Callers pass Job.ScopeHolder as owner.
	LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (Outcome, error)

	// UnlockScope releases the lease only if owner matches the recorded
	// holder exactly. Leases held by others are left alone.
	UnlockScope(ctx context.Context, processInstanceID, owner string) error
}
