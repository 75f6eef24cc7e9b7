// Package memory provides a fully in-memory implementation of the job
// store. It is safe for concurrent access and honors the same version
// guard as the database backends, which makes it the reference backend for
// unit tests and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

type scopeLease struct {
	owner string
	until time.Time
}

// Store is an in-memory job store.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*job.Job
	scopes map[string]scopeLease
	closed bool

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps and scope leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:   make(map[string]*job.Job),
		scopes: make(map[string]scopeLease),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return asyncexec.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later calls fail with ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// InsertJob persists a new job.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return asyncexec.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return asyncexec.ErrJobAlreadyExists
	}

	now := m.now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Version == 0 {
		j.Version = 1
	}
	m.jobs[key] = j.Clone()
	return nil
}

// UpdateJob replaces the stored record when its version equals j.Version.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) (job.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return job.Conflict, asyncexec.ErrStoreClosed
	}

	key := j.ID.String()
	stored, ok := m.jobs[key]
	if !ok || stored.Version != j.Version {
		return job.Conflict, nil
	}

	j.Version++
	j.UpdatedAt = m.now().UTC()
	m.jobs[key] = j.Clone()
	return job.Applied, nil
}

// DeleteJob removes the stored record when its version equals j.Version.
func (m *Store) DeleteJob(_ context.Context, j *job.Job) (job.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return job.Conflict, asyncexec.ErrStoreClosed
	}

	key := j.ID.String()
	stored, ok := m.jobs[key]
	if !ok || stored.Version != j.Version {
		return job.Conflict, nil
	}
	delete(m.jobs, key)
	return job.Applied, nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, asyncexec.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, asyncexec.ErrJobNotFound
	}
	return j.Clone(), nil
}

// FindAcquirableJobs returns due, unlocked-or-expired jobs of the
// category, oldest due date first.
func (m *Store) FindAcquirableJobs(_ context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, asyncexec.ErrStoreClosed
	}

	var out []*job.Job
	for _, j := range m.jobs {
		if job.Acquirable(j, category, now) {
			out = append(out, j)
		}
	}
	sortByDue(out)
	return cloneAll(job.Query{Limit: limit}.Page(out)), nil
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (m *Store) FindExpiredLockJobs(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, asyncexec.ErrStoreClosed
	}

	var out []*job.Job
	for _, j := range m.jobs {
		if j.LockExpired(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].LockExpiration.Before(*out[b].LockExpiration)
	})
	return cloneAll(job.Query{Limit: limit}.Page(out)), nil
}

// ListJobs returns jobs matching q ordered by creation time.
func (m *Store) ListJobs(_ context.Context, q job.Query) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, asyncexec.ErrStoreClosed
	}

	out := m.filter(q)
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return id.Compare(out[a].ID, out[b].ID) < 0
	})
	return cloneAll(q.Page(out)), nil
}

// CountJobs returns the number of jobs matching q.
func (m *Store) CountJobs(_ context.Context, q job.Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, asyncexec.ErrStoreClosed
	}
	return int64(len(m.filter(q))), nil
}

func (m *Store) filter(q job.Query) []*job.Job {
	var out []*job.Job
	for _, j := range m.jobs {
		if q.Matches(j) {
			out = append(out, j)
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Exclusive scope leases
// ──────────────────────────────────────────────────

// LockScope leases the process instance's exclusive scope to owner.
func (m *Store) LockScope(_ context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return job.Conflict, asyncexec.ErrStoreClosed
	}

	if l, ok := m.scopes[processInstanceID]; ok && l.until.After(m.now()) {
		return job.Conflict, nil
	}
	m.scopes[processInstanceID] = scopeLease{owner: owner, until: until}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (m *Store) UnlockScope(_ context.Context, processInstanceID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return asyncexec.ErrStoreClosed
	}

	if l, ok := m.scopes[processInstanceID]; ok && l.owner == owner {
		delete(m.scopes, processInstanceID)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func sortByDue(jobs []*job.Job) {
	sort.Slice(jobs, func(a, b int) bool {
		da, db := job.DueKey(jobs[a]), job.DueKey(jobs[b])
		if !da.Equal(db) {
			return da.Before(db)
		}
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
		}
		return id.Compare(jobs[a].ID, jobs[b].ID) < 0
	})
}

func cloneAll(jobs []*job.Job) []*job.Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}
