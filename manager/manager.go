// Package manager owns every state transition of a job. Other components
// (acquisition, the worker pool, the sweeper, administrative tools) never
// rewrite a job's state tag themselves; they call the Manager, which
// validates the move against the state machine and applies it through a
// single version-guarded write.
//
// Transition methods return a job.Outcome. On Applied the caller's *job.Job
// reflects the stored record, including its new version. On Conflict the
// caller's job is left exactly as it was passed in, the stored record is
// untouched, and the caller is expected to drop the job and move on.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/backoff"
	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/memqueue"
)

// AsyncExecutor is the node executor hook used for the best-effort
// immediate offer of freshly scheduled jobs. worker.Pool satisfies it.
type AsyncExecutor interface {
	// ExecuteAsyncJob offers a claimed job for immediate execution and
	// reports whether it was accepted. It never blocks.
	ExecuteAsyncJob(j *job.Job) bool
	// IsActive reports whether the executor is running.
	IsActive() bool
}

// Manager orchestrates job creation and state transitions.
type Manager struct {
	store      job.Store
	handlers   *job.Registry
	extensions *ext.Registry
	memq       *memqueue.Registry
	executor   AsyncExecutor
	backoff    backoff.Strategy
	logger     *slog.Logger
	now        func() time.Time

	defaultRetries   int
	lockOwner        string
	asyncJobLockTime time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithExtensions sets the lifecycle extension registry.
func WithExtensions(r *ext.Registry) Option {
	return func(m *Manager) { m.extensions = r }
}

// WithMemQueue enables the in-memory fast path for pinned process
// instances.
func WithMemQueue(r *memqueue.Registry) Option {
	return func(m *Manager) { m.memq = r }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(m *Manager) { m.backoff = s }
}

// WithDefaultRetries sets the retry budget of newly created jobs.
func WithDefaultRetries(n int) Option {
	return func(m *Manager) { m.defaultRetries = n }
}

// WithLockOwner sets the owner written into jobs this node claims when it
// offers them for immediate execution.
func WithLockOwner(owner string) Option {
	return func(m *Manager) { m.lockOwner = owner }
}

// WithAsyncJobLockTime sets the lease of jobs offered for immediate
// execution.
func WithAsyncJobLockTime(d time.Duration) Option {
	return func(m *Manager) { m.asyncJobLockTime = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager on top of store. handlers resolves job handler
// types for Execute.
func New(store job.Store, handlers *job.Registry, opts ...Option) *Manager {
	cfg := asyncexec.DefaultConfig()
	m := &Manager{
		store:            store,
		handlers:         handlers,
		backoff:          backoff.Default(cfg.RetryWaitTime),
		logger:           slog.Default(),
		now:              time.Now,
		defaultRetries:   cfg.DefaultRetries,
		asyncJobLockTime: cfg.AsyncJobLockTime,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extensions == nil {
		m.extensions = ext.NewRegistry(m.logger)
	}
	if m.handlers == nil {
		m.handlers = job.NewRegistry()
	}
	return m
}

// SetAsyncExecutor attaches the node executor after construction; the
// executor itself depends on the Manager.
func (m *Manager) SetAsyncExecutor(e AsyncExecutor) {
	m.executor = e
}

// Store returns the underlying job store.
func (m *Manager) Store() job.Store { return m.store }

// Extensions returns the lifecycle extension registry.
func (m *Manager) Extensions() *ext.Registry { return m.extensions }

// Handlers returns the handler registry.
func (m *Manager) Handlers() *job.Registry { return m.handlers }

// Execute runs the job's handler. It does not change persisted state; the
// caller decides the follow-up transition from the returned error.
func (m *Manager) Execute(ctx context.Context, j *job.Job) error {
	h, ok := m.handlers.Get(j.HandlerType)
	if !ok {
		return fmt.Errorf("%w: %q", asyncexec.ErrHandlerNotFound, j.HandlerType)
	}
	return h(ctx, j)
}

// apply runs mutate on a copy of j and writes it with the version guard.
// On Applied, j is replaced by the written copy.
func (m *Manager) apply(ctx context.Context, j *job.Job, mutate func(*job.Job)) (job.Outcome, error) {
	next := j.Clone()
	mutate(next)

	out, err := m.store.UpdateJob(ctx, next)
	if err != nil {
		return job.Conflict, fmt.Errorf("update job %s: %w", j.ID, err)
	}
	if out == job.Applied {
		*j = *next
	} else {
		m.logConflict("update", j)
	}
	return out, nil
}

// transition validates and applies a state change.
func (m *Manager) transition(ctx context.Context, j *job.Job, to job.State, mutate func(*job.Job)) (job.Outcome, error) {
	if !job.CanTransition(j.State, to) {
		return job.Conflict, fmt.Errorf("%w: %s -> %s", asyncexec.ErrInvalidState, j.State, to)
	}
	return m.apply(ctx, j, func(n *job.Job) {
		n.State = to
		if mutate != nil {
			mutate(n)
		}
	})
}

// releaseScope drops the exclusive scope lease taken when owner claimed j.
// A lease taken by a later claim is kept. Failures are logged: the lease
// expires on its own.
func (m *Manager) releaseScope(ctx context.Context, j *job.Job, owner string) {
	if !j.Exclusive || owner == "" || j.ProcessInstanceID == "" {
		return
	}
	if err := m.store.UnlockScope(ctx, j.ProcessInstanceID, j.ScopeHolder(owner)); err != nil {
		m.logger.Error("failed to release exclusive scope",
			slog.String("job_id", j.ID.String()),
			slog.String("process_instance_id", j.ProcessInstanceID),
			slog.String("lock_owner", owner),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) logConflict(op string, j *job.Job) {
	m.logger.Debug("optimistic conflict",
		slog.String("op", op),
		slog.String("job_id", j.ID.String()),
		slog.Int64("version", j.Version),
	)
}
