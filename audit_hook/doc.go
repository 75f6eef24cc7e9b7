// Package audithook is an extension that turns job lifecycle events into
// audit records.
//
// Every lifecycle hook emits a structured [AuditEvent] through the
// [Recorder] interface. Severity follows the event: info for normal
// progress, warning for retries and released locks, critical for jobs that
// reach the dead letter state. Recorder errors are logged and never fail
// the job transition that produced the event.
//
// # Usage
//
//	eng, _ := engine.New(store,
//	    engine.WithExtension(audithook.New(audithook.RecorderFunc(
//	        func(ctx context.Context, evt *audithook.AuditEvent) error {
//	            return auditLog.Append(ctx, evt)
//	        },
//	    ))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobDeadLettered,
//	        audithook.ActionLockReleased,
//	    ),
//	)
package audithook
