package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/timer"
)

// CreateAsyncJob builds an executable job for exec, due immediately unless
// job.WithDueDate says otherwise. The job is not persisted; pass it to
// ScheduleAsyncJob.
func (m *Manager) CreateAsyncJob(exec job.Execution, exclusive bool, opts ...job.Option) *job.Job {
	o := job.Options{Retries: m.defaultRetries, HandlerType: job.HandlerAsyncContinuation}.Apply(opts...)

	j := m.newJob(exec, job.StateExecutable, o)
	j.Exclusive = exclusive
	if !o.DueDate.IsZero() {
		due := o.DueDate.UTC()
		j.DueDate = &due
	}
	return j
}

// ScheduleAsyncJob persists a new executable job. When the owning process
// instance is pinned in the in-memory fast path the job is parked there
// instead. Otherwise, if the local executor is running and the job is due
// and not exclusive, the job is claimed by this node as it is written and
// offered for immediate execution. A rejected offer releases the claim,
// leaving the job to the next acquisition cycle.
func (m *Manager) ScheduleAsyncJob(ctx context.Context, j *job.Job) error {
	if j.State != job.StateExecutable {
		return fmt.Errorf("%w: schedule async job in state %s", asyncexec.ErrInvalidState, j.State)
	}

	if m.memq != nil && m.memq.TryAppend(j) {
		m.logger.Debug("async job parked in memory",
			slog.String("job_id", j.ID.String()),
			slog.String("process_instance_id", j.ProcessInstanceID),
		)
		return nil
	}

	return m.insertAsync(ctx, j)
}

// insertAsync writes an executable job, claiming and offering it to the
// local executor when possible.
func (m *Manager) insertAsync(ctx context.Context, j *job.Job) error {
	offer := m.canOffer(j)
	if offer {
		j.Lock(m.lockOwner, m.now().Add(m.asyncJobLockTime))
	}

	if err := m.store.InsertJob(ctx, j); err != nil {
		if offer {
			j.Unlock()
		}
		return fmt.Errorf("insert async job %s: %w", j.ID, err)
	}
	m.extensions.EmitJobCreated(ctx, j)

	if offer {
		m.offer(ctx, j)
	}
	return nil
}

// canOffer reports whether j may bypass acquisition. Exclusive jobs always
// go through acquisition, which takes the scope lease.
func (m *Manager) canOffer(j *job.Job) bool {
	return m.executor != nil &&
		m.executor.IsActive() &&
		m.lockOwner != "" &&
		!j.Exclusive &&
		j.IsDue(m.now())
}

func (m *Manager) offer(ctx context.Context, j *job.Job) {
	// The executor owns the job once accepted; hand it a private copy.
	if m.executor.ExecuteAsyncJob(j.Clone()) {
		return
	}
	m.logger.Debug("immediate offer rejected, leaving job to acquisition",
		slog.String("job_id", j.ID.String()),
	)
	if _, err := m.Unacquire(ctx, j); err != nil {
		m.logger.Error("failed to release rejected job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// CreateTimerJob builds a timer job whose due date is computed from def.
// handlerType names the handler that runs when the timer fires; empty
// means job.HandlerTriggerTimer. Cycle definitions produce repeating
// timers. The job is not persisted; pass it to ScheduleTimerJob.
func (m *Manager) CreateTimerJob(def timer.Definition, interrupting bool, exec job.Execution, handlerType string, handlerConfig []byte) (*job.Job, error) {
	due, err := def.DueDate(m.now())
	if err != nil {
		return nil, err
	}
	if handlerType == "" {
		handlerType = job.HandlerTriggerTimer
	}

	j := m.newJob(exec, job.StateTimer, job.Options{
		Retries:       m.defaultRetries,
		HandlerType:   handlerType,
		HandlerConfig: handlerConfig,
	})
	j.DueDate = &due
	j.Interrupting = interrupting
	if def.Repeating() {
		j.Repeat = def.Expression
		j.MaxIterations = def.Iterations()
		j.EndDate = def.EndDate
	}
	return j, nil
}

// ScheduleTimerJob persists a timer job.
func (m *Manager) ScheduleTimerJob(ctx context.Context, j *job.Job) error {
	if j.State != job.StateTimer {
		return fmt.Errorf("%w: schedule timer job in state %s", asyncexec.ErrInvalidState, j.State)
	}
	if j.DueDate == nil {
		return fmt.Errorf("%w: timer job %s has no due date", asyncexec.ErrInvalidTimer, j.ID)
	}

	if err := m.store.InsertJob(ctx, j); err != nil {
		return fmt.Errorf("insert timer job %s: %w", j.ID, err)
	}
	m.extensions.EmitJobCreated(ctx, j)

	m.logger.Debug("timer job scheduled",
		slog.String("job_id", j.ID.String()),
		slog.Time("due_date", *j.DueDate),
	)
	return nil
}

func (m *Manager) newJob(exec job.Execution, state job.State, o job.Options) *job.Job {
	return &job.Job{
		Entity:              asyncexec.NewEntity(),
		ID:                  id.NewJobID(),
		State:               state,
		ProcessInstanceID:   exec.ProcessInstanceID,
		ExecutionID:         exec.ID,
		ProcessDefinitionID: exec.ProcessDefinitionID,
		TenantID:            exec.TenantID,
		Retries:             o.Retries,
		HandlerType:         o.HandlerType,
		HandlerConfig:       o.HandlerConfig,
	}
}
