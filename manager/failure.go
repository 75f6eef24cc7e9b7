package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/backoff"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/timer"
)

// stackTracer is implemented by errors that carry the stack of the failed
// handler, such as the error produced by middleware.Recover.
type stackTracer interface {
	StackTrace() string
}

// HandleFailure records a failed execution of j. A job with retries left
// loses one retry, keeps the exception and waits as a timer until the
// backoff delay has passed. A job with no retries left moves to the dead
// letter state. The claim on j is released either way.
func (m *Manager) HandleFailure(ctx context.Context, j *job.Job, cause error) (job.Outcome, error) {
	if cause == nil {
		cause = errors.New("job failed without error")
	}
	msg, detail := exceptionOf(cause)

	if j.Retries <= 0 {
		return m.deadLetter(ctx, j, cause, func(n *job.Job) {
			n.SetException(msg, detail)
		})
	}

	owner := j.LockOwner
	attempt := max(1, m.defaultRetries-j.Retries+1)
	due := backoff.DueDate(m.backoff, m.now(), attempt).UTC()

	out, err := m.transition(ctx, j, job.StateTimer, func(n *job.Job) {
		n.Retries--
		n.SetException(msg, detail)
		n.DueDate = &due
		n.Unlock()
	})
	if err != nil || out != job.Applied {
		return out, err
	}

	m.releaseScope(ctx, j, owner)
	m.extensions.EmitJobRetrying(ctx, j, cause, due)
	m.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("handler_type", j.HandlerType),
		slog.Int("retries_left", j.Retries),
		slog.Time("due_date", due),
		slog.String("error", msg),
	)
	return out, nil
}

// Complete removes a successfully executed job. A repeating timer job is
// replaced by its next iteration unless its iteration count or end date
// is exhausted.
//
// The next iteration is written before the current record is deleted, so
// a failed write leaves the current record in place and the cycle is not
// lost. When the delete does not apply, the successor is removed again.
func (m *Manager) Complete(ctx context.Context, j *job.Job) (job.Outcome, error) {
	next, err := m.nextIteration(j)
	if err != nil {
		m.logger.Error("cannot compute next timer iteration",
			slog.String("job_id", j.ID.String()),
			slog.String("repeat", j.Repeat),
			slog.String("error", err.Error()),
		)
	}

	if next != nil {
		if err := m.store.InsertJob(ctx, next); err != nil {
			return job.Conflict, fmt.Errorf("schedule next iteration of %s: %w", j.ID, err)
		}
	}

	out, err := m.store.DeleteJob(ctx, j)
	if err != nil || out == job.Conflict {
		m.discardIteration(ctx, j, next)
	}
	if err != nil {
		return job.Conflict, fmt.Errorf("delete job %s: %w", j.ID, err)
	}
	if out == job.Conflict {
		m.logConflict("complete", j)
		return out, nil
	}
	m.releaseScope(ctx, j, j.LockOwner)

	if next != nil {
		m.extensions.EmitJobCreated(ctx, next)
		m.logger.Debug("timer job scheduled",
			slog.String("job_id", next.ID.String()),
			slog.String("previous_job_id", j.ID.String()),
			slog.Time("due_date", *next.DueDate),
		)
	}
	return out, nil
}

// discardIteration deletes the successor written for j after j itself
// could not be removed.
func (m *Manager) discardIteration(ctx context.Context, j, next *job.Job) {
	if next == nil {
		return
	}
	out, err := m.store.DeleteJob(ctx, next)
	if err == nil && out == job.Applied {
		return
	}
	attrs := []any{
		slog.String("job_id", next.ID.String()),
		slog.String("previous_job_id", j.ID.String()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	m.logger.Error("failed to discard next timer iteration", attrs...)
}

// nextIteration returns the follow-up timer of a repeating job, or nil.
func (m *Manager) nextIteration(j *job.Job) (*job.Job, error) {
	if j.Repeat == "" || j.MaxIterations == 1 {
		return nil, nil
	}

	base := m.now()
	if j.DueDate != nil {
		base = *j.DueDate
	}
	due, ok, err := timer.Next(j.Repeat, base, j.EndDate)
	if err != nil || !ok {
		return nil, err
	}

	next := j.Clone()
	next.Entity = asyncexec.NewEntity()
	next.ID = id.NewJobID()
	next.State = job.StateTimer
	next.SuspendedFrom = ""
	next.DueDate = &due
	next.Retries = m.defaultRetries
	next.SetException("", "")
	next.Unlock()
	next.Version = 0
	if next.MaxIterations > 0 {
		next.MaxIterations--
	}
	return next, nil
}

// exceptionOf splits an error into the summary and detail stored on a
// failed job. The detail is the handler's stack when the error carries
// one, otherwise the chain of wrapped errors.
func exceptionOf(err error) (string, string) {
	var st stackTracer
	if errors.As(err, &st) {
		return err.Error(), st.StackTrace()
	}

	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b.Len() > 0 {
			b.WriteString("\ncaused by: ")
		}
		fmt.Fprintf(&b, "%T: %s", e, e.Error())
	}
	return err.Error(), b.String()
}
