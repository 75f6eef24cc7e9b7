package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated      = "job.created"
	ActionJobAcquired     = "job.acquired"
	ActionJobCompleted    = "job.completed"
	ActionJobRetrying     = "job.retrying"
	ActionJobDeadLettered = "job.deadlettered"
	ActionJobReactivated  = "job.reactivated"
	ActionJobSuspended    = "job.suspended"
	ActionJobActivated    = "job.activated"
	ActionLockReleased    = "lock.released"
)

// Audit event categories group related actions.
const (
	CategoryJob  = "asyncexec.job"
	CategoryNode = "asyncexec.node"
)

// ResourceJob is the Resource field of every audit event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobAcquired,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobDeadLettered,
		ActionJobReactivated,
		ActionJobSuspended,
		ActionJobActivated,
		ActionLockReleased,
	}
}
