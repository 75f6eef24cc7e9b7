package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/asyncexec/job"
)

// SuspendProcessInstanceJobs suspends every timer and executable job of
// the process instance. Jobs that lose a race are skipped. It returns the
// number of jobs suspended.
func (m *Manager) SuspendProcessInstanceJobs(ctx context.Context, processInstanceID string) (int, error) {
	n := 0
	for _, state := range []job.State{job.StateTimer, job.StateExecutable} {
		jobs, err := m.store.ListJobs(ctx, job.Query{State: state, ProcessInstanceID: processInstanceID})
		if err != nil {
			return n, fmt.Errorf("list %s jobs of %s: %w", state, processInstanceID, err)
		}
		for _, j := range jobs {
			out, err := m.MoveJobToSuspendedJob(ctx, j)
			if err != nil {
				return n, err
			}
			if out == job.Applied {
				n++
			}
		}
	}
	return n, nil
}

// ActivateProcessInstanceJobs restores every suspended job of the process
// instance. It returns the number of jobs activated.
func (m *Manager) ActivateProcessInstanceJobs(ctx context.Context, processInstanceID string) (int, error) {
	jobs, err := m.store.ListJobs(ctx, job.Query{State: job.StateSuspended, ProcessInstanceID: processInstanceID})
	if err != nil {
		return 0, fmt.Errorf("list suspended jobs of %s: %w", processInstanceID, err)
	}

	n := 0
	for _, j := range jobs {
		out, err := m.ActivateSuspendedJob(ctx, j)
		if err != nil {
			return n, err
		}
		if out == job.Applied {
			n++
		}
	}
	return n, nil
}

// PinProcessInstance registers the process instance with the in-memory
// fast path, so ScheduleAsyncJob parks its jobs in memory. It is a no-op
// without a fast-path registry.
func (m *Manager) PinProcessInstance(processInstanceID string) {
	if m.memq != nil {
		m.memq.Register(processInstanceID)
	}
}

// ReleaseProcessInstance unpins a process instance from the in-memory fast
// path. Parked jobs are drained and persisted until the registry accepts
// the unregistration, so jobs appended concurrently are never dropped. It
// returns the number of jobs persisted.
//
// If persisting fails, the jobs not yet written are parked again and the
// instance stays pinned.
func (m *Manager) ReleaseProcessInstance(ctx context.Context, processInstanceID string) (int, error) {
	if m.memq == nil {
		return 0, nil
	}

	n := 0
	for {
		parked := m.memq.Drain(processInstanceID)
		for i, j := range parked {
			if err := m.insertAsync(ctx, j); err != nil {
				for _, rest := range parked[i:] {
					m.memq.TryAppend(rest)
				}
				return n, err
			}
			n++
		}
		if m.memq.Unregister(processInstanceID) {
			break
		}
	}

	if n > 0 {
		m.logger.Debug("released pinned process instance",
			slog.String("process_instance_id", processInstanceID),
			slog.Int("persisted", n),
		)
	}
	return n, nil
}
