package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobCreated      = (*Extension)(nil)
	_ ext.JobAcquired     = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobRetrying     = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.JobReactivated  = (*Extension)(nil)
	_ ext.JobSuspended    = (*Extension)(nil)
	_ ext.JobActivated    = (*Extension)(nil)
	_ ext.LockReleased    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges job lifecycle events to an audit trail backend.
type Extension struct {
	recorder     Recorder
	actions      map[string]bool // nil = all
	handlerTypes map[string]bool // nil = all
	minSeverity  int
	logger       *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	kv := []any{
		"state", string(j.State),
		"handler_type", j.HandlerType,
		"process_instance_id", j.ProcessInstanceID,
	}
	if j.DueDate != nil {
		kv = append(kv, "due_date", j.DueDate.Format(time.RFC3339))
	}
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		CategoryJob, j, nil, kv...)
}

// OnJobAcquired implements ext.JobAcquired.
func (e *Extension) OnJobAcquired(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobAcquired, SeverityInfo, OutcomeSuccess,
		CategoryNode, j, nil,
		"handler_type", j.HandlerType,
		"lock_owner", j.LockOwner,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		CategoryJob, j, nil,
		"handler_type", j.HandlerType,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, cause error, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		CategoryJob, j, cause,
		"handler_type", j.HandlerType,
		"retries_left", j.Retries,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, cause error) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		CategoryJob, j, cause,
		"handler_type", j.HandlerType,
	)
}

// OnJobReactivated implements ext.JobReactivated.
func (e *Extension) OnJobReactivated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobReactivated, SeverityInfo, OutcomeSuccess,
		CategoryJob, j, nil,
		"retries", j.Retries,
	)
}

// OnJobSuspended implements ext.JobSuspended.
func (e *Extension) OnJobSuspended(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobSuspended, SeverityInfo, OutcomeSuccess,
		CategoryJob, j, nil,
		"suspended_from", string(j.SuspendedFrom),
	)
}

// OnJobActivated implements ext.JobActivated.
func (e *Extension) OnJobActivated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobActivated, SeverityInfo, OutcomeSuccess,
		CategoryJob, j, nil,
		"state", string(j.State),
	)
}

// ── Node hooks ──────────────────────────────────────

// OnLockReleased implements ext.LockReleased.
func (e *Extension) OnLockReleased(ctx context.Context, j *job.Job, previousOwner string) error {
	return e.record(ctx, ActionLockReleased, SeverityWarning, OutcomeSuccess,
		CategoryNode, j, nil,
		"previous_owner", previousOwner,
	)
}

// ── Internal helpers ────────────────────────────────

// enabled applies the action, handler type and severity filters.
func (e *Extension) enabled(action, severity string, j *job.Job) bool {
	if e.actions != nil && !e.actions[action] {
		return false
	}
	if e.handlerTypes != nil && !e.handlerTypes[j.HandlerType] {
		return false
	}
	return severityRank[severity] >= e.minSeverity
}

// record builds and sends an audit event if it passes the filters.
// kvPairs are added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome, category string,
	j *job.Job,
	err error,
	kvPairs ...any,
) error {
	if !e.enabled(action, severity, j) {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   category,
		ResourceID: j.ID.String(),
		TenantID:   j.TenantID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
