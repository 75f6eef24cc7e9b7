// Package ext defines the extension system of the job executor.
//
// # Implementing an Extension
//
//	type alerting struct{}
//
//	func (a *alerting) Name() string { return "alerting" }
//
//	func (a *alerting) OnJobDeadLettered(ctx context.Context, j *job.Job, cause error) error {
//	    return pager.Notify(ctx, j.ID.String(), cause)
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: a timer or executable job was persisted
//   - [JobAcquired]: this node claimed a job
//   - [JobCompleted]: the handler succeeded and the job was removed
//   - [JobRetrying]: the handler failed and the job waits for a retry
//   - [JobDeadLettered]: the job exhausted its retries
//   - [JobReactivated]: a dead-letter job was made executable again
//   - [JobSuspended] and [JobActivated]: the owning process instance was
//     suspended or resumed
//
// # Node Hooks
//
//   - [LockReleased]: a claim was cleared without running the job
//   - [Shutdown]: the executor is shutting down
//
// Hook errors are logged and never fail the operation that emitted them.
package ext
