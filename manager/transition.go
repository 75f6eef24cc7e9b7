package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/job"
)

// Unacquire clears the claim on j without touching its state or retries,
// releasing it back to acquisition. An exclusive job's scope lease is
// released with it.
func (m *Manager) Unacquire(ctx context.Context, j *job.Job) (job.Outcome, error) {
	owner := j.LockOwner
	out, err := m.apply(ctx, j, (*job.Job).Unlock)
	if err != nil || out != job.Applied {
		return out, err
	}

	m.releaseScope(ctx, j, owner)
	m.extensions.EmitLockReleased(ctx, j, owner)
	return out, nil
}

// MoveTimerJobToExecutableJob fires a due timer: the job becomes
// executable in place, keeping its handler configuration, correlation IDs
// and any claim held on it.
func (m *Manager) MoveTimerJobToExecutableJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	if j.State != job.StateTimer {
		return job.Conflict, fmt.Errorf("%w: %s is not a timer job", asyncexec.ErrInvalidState, j.ID)
	}
	return m.transition(ctx, j, job.StateExecutable, nil)
}

// MoveJobToTimerJob reschedules j as a timer due at dueDate and releases
// its claim. Retries are not touched.
func (m *Manager) MoveJobToTimerJob(ctx context.Context, j *job.Job, dueDate time.Time) (job.Outcome, error) {
	if j.State == job.StateSuspended {
		return job.Conflict, fmt.Errorf("%w: %s is suspended", asyncexec.ErrInvalidState, j.ID)
	}
	owner := j.LockOwner
	out, err := m.transition(ctx, j, job.StateTimer, func(n *job.Job) {
		due := dueDate.UTC()
		n.DueDate = &due
		n.Unlock()
	})
	if err == nil && out == job.Applied {
		m.releaseScope(ctx, j, owner)
	}
	return out, err
}

// MoveJobToSuspendedJob hides j from acquisition, remembering its state
// for ActivateSuspendedJob.
func (m *Manager) MoveJobToSuspendedJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	from := j.State
	owner := j.LockOwner
	out, err := m.transition(ctx, j, job.StateSuspended, func(n *job.Job) {
		n.SuspendedFrom = from
		n.Unlock()
	})
	if err != nil || out != job.Applied {
		return out, err
	}

	m.releaseScope(ctx, j, owner)
	m.extensions.EmitJobSuspended(ctx, j)
	return out, nil
}

// ActivateSuspendedJob restores a suspended job to the state it was
// suspended from. A timer without a due date is restored as executable.
func (m *Manager) ActivateSuspendedJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	if j.State != job.StateSuspended {
		return job.Conflict, fmt.Errorf("%w: %s is not suspended", asyncexec.ErrInvalidState, j.ID)
	}

	to := j.SuspendedFrom
	if to != job.StateTimer || j.DueDate == nil {
		to = job.StateExecutable
	}
	out, err := m.transition(ctx, j, to, func(n *job.Job) {
		n.SuspendedFrom = ""
	})
	if err != nil || out != job.Applied {
		return out, err
	}

	m.extensions.EmitJobActivated(ctx, j)
	return out, nil
}

// MoveJobToDeadLetterJob parks j until it is explicitly reactivated. The
// last exception is preserved.
func (m *Manager) MoveJobToDeadLetterJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	var cause error
	if j.ExceptionMessage != "" {
		cause = errors.New(j.ExceptionMessage)
	}
	return m.deadLetter(ctx, j, cause, nil)
}

func (m *Manager) deadLetter(ctx context.Context, j *job.Job, cause error, mutate func(*job.Job)) (job.Outcome, error) {
	owner := j.LockOwner
	out, err := m.transition(ctx, j, job.StateDeadLetter, func(n *job.Job) {
		n.Unlock()
		if mutate != nil {
			mutate(n)
		}
	})
	if err != nil || out != job.Applied {
		return out, err
	}

	m.releaseScope(ctx, j, owner)
	m.extensions.EmitJobDeadLettered(ctx, j, cause)
	m.logger.Warn("job moved to dead letter after exhausting retries",
		slog.String("job_id", j.ID.String()),
		slog.String("handler_type", j.HandlerType),
		slog.String("exception", j.ExceptionMessage),
	)
	return out, nil
}

// MoveDeadLetterJobToExecutableJob reactivates a dead-letter job with a
// fresh retry budget. It is the only operation that raises retries.
func (m *Manager) MoveDeadLetterJobToExecutableJob(ctx context.Context, j *job.Job, retries int) (job.Outcome, error) {
	if j.State != job.StateDeadLetter {
		return job.Conflict, fmt.Errorf("%w: %s is not dead-lettered", asyncexec.ErrInvalidState, j.ID)
	}
	if retries <= 0 {
		return job.Conflict, fmt.Errorf("%w: got %d", asyncexec.ErrInvalidRetries, retries)
	}

	out, err := m.transition(ctx, j, job.StateExecutable, func(n *job.Job) {
		n.Retries = retries
		n.DueDate = nil
		n.Unlock()
	})
	if err != nil || out != job.Applied {
		return out, err
	}

	m.extensions.EmitJobReactivated(ctx, j)
	m.logger.Info("dead-letter job reactivated",
		slog.String("job_id", j.ID.String()),
		slog.Int("retries", retries),
	)
	return out, nil
}

// DeleteJob removes j regardless of its state.
func (m *Manager) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	out, err := m.store.DeleteJob(ctx, j)
	if err != nil {
		return job.Conflict, fmt.Errorf("delete job %s: %w", j.ID, err)
	}
	if out == job.Conflict {
		m.logConflict("delete", j)
		return out, nil
	}
	m.releaseScope(ctx, j, j.LockOwner)
	return out, nil
}
