// Package acquire implements the acquisition cycle: one bounded pass that
// selects due, unclaimed jobs of a single category and claims a batch of
// them for a node through version-guarded writes.
//
// Racing nodes need no coordination beyond the version guard. A candidate
// whose claim loses the race is dropped from the batch; the pass still
// succeeds with whatever it did claim.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
)

// Acquirer claims batches of due jobs.
type Acquirer struct {
	store      job.Store
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time

	pageSize      int
	maxTimerJobs  int
	maxAsyncJobs  int
	timerLockTime time.Duration
	asyncLockTime time.Duration
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithConfig copies page size, batch limits and lock leases from cfg.
func WithConfig(cfg asyncexec.Config) Option {
	return func(a *Acquirer) {
		a.pageSize = cfg.AcquirePageSize
		a.maxTimerJobs = cfg.MaxTimerJobsPerAcquisition
		a.maxAsyncJobs = cfg.MaxAsyncJobsPerAcquisition
		a.timerLockTime = cfg.TimerLockTime
		a.asyncLockTime = cfg.AsyncJobLockTime
	}
}

// WithExtensions sets the registry notified of every claim.
func WithExtensions(r *ext.Registry) Option {
	return func(a *Acquirer) { a.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) { a.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Acquirer) { a.now = now }
}

// New creates an Acquirer using the default configuration unless
// overridden.
func New(store job.Store, opts ...Option) *Acquirer {
	a := &Acquirer{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	WithConfig(asyncexec.DefaultConfig())(a)
	for _, opt := range opts {
		opt(a)
	}
	if a.extensions == nil {
		a.extensions = ext.NewRegistry(a.logger)
	}
	return a
}

// Limit returns the maximum batch size for category.
func (a *Acquirer) Limit(category job.Category) int {
	if category == job.CategoryTimer {
		return a.maxTimerJobs
	}
	return a.maxAsyncJobs
}

// LockTime returns the lease granted to claims of category.
func (a *Acquirer) LockTime(category job.Category) time.Duration {
	if category == job.CategoryTimer {
		return a.timerLockTime
	}
	return a.asyncLockTime
}

// Acquire runs one acquisition pass for category on behalf of owner and
// returns the jobs it claimed, oldest due date first.
//
// Exclusive jobs additionally need their process instance's scope lease;
// at most one exclusive job per process instance is claimed per pass, and
// none while another claim holds the lease.
//
// A storage error aborts the pass. Jobs claimed before the error are
// returned alongside it and remain claimed by owner.
func (a *Acquirer) Acquire(ctx context.Context, category job.Category, owner string) ([]*job.Job, error) {
	return a.AcquireN(ctx, category, owner, a.Limit(category))
}

// AcquireN is Acquire with the batch size lowered to limit, for callers
// that can only take a few more jobs. A limit above the category's
// configured maximum is clamped to it.
func (a *Acquirer) AcquireN(ctx context.Context, category job.Category, owner string, limit int) ([]*job.Job, error) {
	limit = min(limit, a.Limit(category))
	if limit <= 0 {
		return nil, nil
	}
	now := a.now().UTC()
	until := now.Add(a.LockTime(category))

	candidates, err := a.store.FindAcquirableJobs(ctx, category, now, a.pageSize)
	if err != nil {
		return nil, fmt.Errorf("find acquirable %s jobs: %w", category, err)
	}

	var (
		claimed []*job.Job
		scopes  = make(map[string]struct{})
	)
	for _, cand := range candidates {
		if len(claimed) >= limit {
			break
		}

		ok, err := a.claim(ctx, cand, owner, until, scopes)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}

		claimed = append(claimed, cand)
		a.extensions.EmitJobAcquired(ctx, cand)
	}

	if len(claimed) > 0 {
		a.logger.Debug("acquired jobs",
			slog.String("category", string(category)),
			slog.String("lock_owner", owner),
			slog.Int("claimed", len(claimed)),
			slog.Int("candidates", len(candidates)),
		)
	}
	return claimed, nil
}

// claim locks cand for owner. It reports false when the job or its
// exclusive scope was taken by someone else.
func (a *Acquirer) claim(ctx context.Context, cand *job.Job, owner string, until time.Time, scopes map[string]struct{}) (bool, error) {
	exclusive := cand.Exclusive && cand.ProcessInstanceID != ""
	holder := cand.ScopeHolder(owner)
	if exclusive {
		if _, taken := scopes[cand.ProcessInstanceID]; taken {
			return false, nil
		}
		out, err := a.store.LockScope(ctx, cand.ProcessInstanceID, holder, until)
		if err != nil {
			return false, fmt.Errorf("lock scope %s: %w", cand.ProcessInstanceID, err)
		}
		if out == job.Conflict {
			a.logger.Debug("exclusive scope busy",
				slog.String("job_id", cand.ID.String()),
				slog.String("process_instance_id", cand.ProcessInstanceID),
			)
			return false, nil
		}
	}

	next := cand.Clone()
	next.Lock(owner, until)
	out, err := a.store.UpdateJob(ctx, next)
	if err == nil && out == job.Applied {
		*cand = *next
		if exclusive {
			scopes[cand.ProcessInstanceID] = struct{}{}
		}
		return true, nil
	}

	if exclusive {
		if uerr := a.store.UnlockScope(ctx, cand.ProcessInstanceID, holder); uerr != nil {
			a.logger.Error("failed to release exclusive scope",
				slog.String("process_instance_id", cand.ProcessInstanceID),
				slog.String("error", uerr.Error()),
			)
		}
	}
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", cand.ID, err)
	}

	a.logger.Debug("claim lost to another node",
		slog.String("job_id", cand.ID.String()),
		slog.Int64("version", cand.Version),
	)
	return false, nil
}
