// Package job defines the job record, its state machine, the typed outcome
// of version-guarded writes, handler definitions and the store interface.
//
// # State Machine
//
// A [Job] is a single record tagged with one of four states:
//
//	timer ⇄ executable → deleted (success)
//	executable → timer (failure with retries left, backoff due date)
//	executable → deadletter (failure with no retries left)
//	deadletter → executable (explicit reactivation only)
//	timer, executable ⇄ suspended (process instance suspended/resumed)
//
// [CanTransition] encodes the table. Only the manager package changes the
// tag; stores just persist it.
//
// # Optimistic Concurrency
//
// Every update and delete is guarded by [Job.Version]. A lost race is
// reported as the [Conflict] outcome, never as an error, so call sites
// handle "someone else got it first" explicitly:
//
//	out, err := store.UpdateJob(ctx, j)
//	if err != nil {
//	    return err // storage failure
//	}
//	if out == job.Conflict {
//	    return nil // another node advanced the record
//	}
//
// # Handlers
//
// The execution core registers one handler per handler type:
//
//	job.RegisterDefinition(registry, job.NewDefinition("async-continuation",
//	    func(ctx context.Context, j *job.Job, cfg ContinuationConfig) error {
//	        return core.Continue(ctx, j.ExecutionID, cfg.ActivityID)
//	    },
//	))
package job
