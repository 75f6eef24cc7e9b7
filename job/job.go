package job

import (
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
)

// Default handler types used when the caller does not name one.
const (
	HandlerAsyncContinuation = "async-continuation"
	HandlerTriggerTimer      = "trigger-timer"
)

// Job is one unit of deferred work. A single record type carries all four
// logical states; State is the tag, and moving between states rewrites the
// tag in one version-guarded update.
type Job struct {
	asyncexec.Entity

	ID    id.JobID `json:"id"`
	State State    `json:"state"`
	// SuspendedFrom remembers the state to restore on activation. It is
	// only set while State is StateSuspended.
	SuspendedFrom State `json:"suspended_from,omitempty"`

	// Correlation with the execution core.
	ProcessInstanceID   string `json:"process_instance_id,omitempty"`
	ExecutionID         string `json:"execution_id,omitempty"`
	ProcessDefinitionID string `json:"process_definition_id,omitempty"`
	TenantID            string `json:"tenant_id,omitempty"`

	// DueDate is nil for jobs that may run immediately.
	DueDate *time.Time `json:"due_date,omitempty"`

	// LockOwner and LockExpiration are both set or both empty. Use Lock
	// and Unlock rather than assigning them directly.
	LockOwner      string     `json:"lock_owner,omitempty"`
	LockExpiration *time.Time `json:"lock_expiration,omitempty"`

	Retries          int    `json:"retries"`
	ExceptionMessage string `json:"exception_message,omitempty"`
	ExceptionStack   string `json:"exception_stack,omitempty"`

	// HandlerType and HandlerConfig are owned by the execution core.
	HandlerType   string `json:"handler_type"`
	HandlerConfig []byte `json:"handler_config,omitempty"`

	Exclusive bool `json:"exclusive"`

	// Timer attributes. Repeat is a cycle expression understood by the
	// timer package; EndDate and MaxIterations bound repetition.
	Interrupting  bool       `json:"interrupting,omitempty"`
	Repeat        string     `json:"repeat,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	MaxIterations int        `json:"max_iterations,omitempty"`

	// Version increases by one on every applied update.
	Version int64 `json:"version"`
}

// Execution identifies the execution a job continues.
type Execution struct {
	ID                  string
	ProcessInstanceID   string
	ProcessDefinitionID string
	TenantID            string
}

// Category returns the acquisition category of the job's current state.
// Suspended and dead-letter jobs have no category.
func (j *Job) Category() Category {
	switch j.State {
	case StateTimer:
		return CategoryTimer
	case StateExecutable:
		return CategoryAsync
	default:
		return ""
	}
}

// Lock records owner as the claimant until the given time.
func (j *Job) Lock(owner string, until time.Time) {
	u := until.UTC()
	j.LockOwner = owner
	j.LockExpiration = &u
}

// Unlock clears the claim.
func (j *Job) Unlock() {
	j.LockOwner = ""
	j.LockExpiration = nil
}

// IsLocked reports whether a claim exists that has not expired at now.
func (j *Job) IsLocked(now time.Time) bool {
	return j.LockExpiration != nil && j.LockExpiration.After(now)
}

// LockExpired reports whether a claim exists whose lease ran out strictly
// before now. A lease ending exactly at now is not locked (see IsLocked),
// so acquisition may take it, but the sweeper leaves it for its next pass.
func (j *Job) LockExpired(now time.Time) bool {
	return j.LockExpiration != nil && j.LockExpiration.Before(now)
}

// ScopeHolder is the token recorded in the process instance's exclusive
// scope lease when owner claims j. Each claim gets its own token, so
// releasing a stale claim never drops a lease the same node took later for
// another job.
func (j *Job) ScopeHolder(owner string) string {
	return owner + "/" + j.ID.String()
}

// IsDue reports whether the job's due date has been reached at now.
func (j *Job) IsDue(now time.Time) bool {
	return j.DueDate == nil || !j.DueDate.After(now)
}

// SetException records the failure summary and detail of the last attempt.
func (j *Job) SetException(message, stack string) {
	j.ExceptionMessage = message
	j.ExceptionStack = stack
}

// Clone returns a deep copy, so stores and callers never share slices or
// time pointers.
func (j *Job) Clone() *Job {
	cp := *j
	cp.DueDate = cloneTime(j.DueDate)
	cp.LockExpiration = cloneTime(j.LockExpiration)
	cp.EndDate = cloneTime(j.EndDate)
	if j.HandlerConfig != nil {
		cp.HandlerConfig = append([]byte(nil), j.HandlerConfig...)
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
