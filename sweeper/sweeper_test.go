package sweeper_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/acquire"
	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
	"github.com/xraph/asyncexec/store/memory"
	"github.com/xraph/asyncexec/sweeper"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type released struct {
	mu     sync.Mutex
	owners []string
}

func (r *released) Name() string { return "released" }

func (r *released) OnLockReleased(_ context.Context, _ *job.Job, previousOwner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, previousOwner)
	return nil
}

func setup(t *testing.T, pageSize int) (*sweeper.Sweeper, *manager.Manager, *memory.Store, *released) {
	t.Helper()
	clock := func() time.Time { return now }
	s := memory.New(memory.WithClock(clock))

	seen := &released{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(seen)

	m := manager.New(s, job.NewRegistry(), manager.WithExtensions(reg), manager.WithClock(clock))

	cfg := asyncexec.DefaultConfig()
	cfg.ResetExpiredJobsPageSize = pageSize
	cfg.ResetExpiredJobsInterval = 10 * time.Millisecond
	return sweeper.New(m, sweeper.WithConfig(cfg), sweeper.WithClock(clock)), m, s, seen
}

func insertLocked(t *testing.T, m *manager.Manager, s *memory.Store, owner string, until time.Time) *job.Job {
	t.Helper()
	j := m.CreateAsyncJob(job.Execution{ProcessInstanceID: "proc-1"}, false)
	j.Lock(owner, until)
	if err := s.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return j
}

func TestRunOnceBoundary(t *testing.T) {
	t.Parallel()
	sw, m, s, seen := setup(t, 10)
	ctx := context.Background()

	past := insertLocked(t, m, s, "crashed", now.Add(-time.Millisecond))
	future := insertLocked(t, m, s, "alive", now.Add(time.Millisecond))

	reset, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}

	got, _ := s.GetJob(ctx, past.ID)
	if got.LockOwner != "" || got.LockExpiration != nil {
		t.Errorf("expired claim kept: owner=%q", got.LockOwner)
	}
	if got.State != job.StateExecutable || got.Retries != past.Retries {
		t.Errorf("sweep changed state or retries: %s/%d", got.State, got.Retries)
	}

	got, _ = s.GetJob(ctx, future.ID)
	if got.LockOwner != "alive" {
		t.Errorf("live claim was reset")
	}

	if len(seen.owners) != 1 || seen.owners[0] != "crashed" {
		t.Errorf("LockReleased owners = %v", seen.owners)
	}
}

func TestRunOncePageSize(t *testing.T) {
	t.Parallel()
	sw, m, s, _ := setup(t, 3)
	for range 5 {
		insertLocked(t, m, s, "crashed", now.Add(-time.Hour))
	}

	first, err := sw.RunOnce(context.Background())
	if err != nil || first != 3 {
		t.Fatalf("first sweep = %d, %v; want 3", first, err)
	}
	second, err := sw.RunOnce(context.Background())
	if err != nil || second != 2 {
		t.Fatalf("second sweep = %d, %v; want 2", second, err)
	}
}

// staleStore hands the sweeper copies that another node already moved on.
type staleStore struct {
	*memory.Store
}

func (s staleStore) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	jobs, err := s.Store.FindExpiredLockJobs(ctx, now, limit)
	for _, j := range jobs {
		bumped := j.Clone()
		if _, uerr := s.Store.UpdateJob(ctx, bumped); uerr != nil {
			return nil, uerr
		}
	}
	return jobs, err
}

func TestRunOnceToleratesConflicts(t *testing.T) {
	t.Parallel()
	clock := func() time.Time { return now }
	inner := memory.New(memory.WithClock(clock))
	m := manager.New(staleStore{inner}, job.NewRegistry(), manager.WithClock(clock))
	sw := sweeper.New(m, sweeper.WithClock(clock))

	j := insertLocked(t, m, inner, "crashed", now.Add(-time.Minute))

	reset, err := sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce = %v, want conflicts tolerated", err)
	}
	if reset != 0 {
		t.Errorf("reset = %d, want 0", reset)
	}
	got, _ := inner.GetJob(context.Background(), j.ID)
	if got.LockOwner != "crashed" {
		t.Error("conflicting record was overwritten")
	}
}

func TestResetKeepsNewerExclusiveLeaseOfSameNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := now
	tick := func() time.Time { return clock }

	s := memory.New(memory.WithClock(tick))
	m := manager.New(s, job.NewRegistry(), manager.WithClock(tick))
	sw := sweeper.New(m, sweeper.WithClock(tick))
	cfg := asyncexec.DefaultConfig()
	cfg.AsyncJobLockTime = time.Minute
	a := acquire.New(s, acquire.WithConfig(cfg), acquire.WithClock(tick))

	exclusive := func(due time.Time) *job.Job {
		j := m.CreateAsyncJob(job.Execution{ProcessInstanceID: "pi-1"}, true)
		j.DueDate = &due
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
		return j
	}

	j1 := exclusive(now.Add(-time.Minute))
	if got, err := a.Acquire(ctx, job.CategoryAsync, "node-a"); err != nil || len(got) != 1 || got[0].ID.String() != j1.ID.String() {
		t.Fatalf("first claim = %v, %v; want j1", got, err)
	}

	// node-a's lease on j1 runs out and, under the same name, it claims an
	// older sibling.
	j2 := exclusive(now.Add(-time.Hour))
	clock = now.Add(5 * time.Minute)
	got, err := a.Acquire(ctx, job.CategoryAsync, "node-a")
	if err != nil || len(got) != 1 || got[0].ID.String() != j2.ID.String() {
		t.Fatalf("second claim = %v, %v; want j2", got, err)
	}

	if reset, err := sw.RunOnce(ctx); err != nil || reset != 1 {
		t.Fatalf("RunOnce = %d, %v; want 1", reset, err)
	}

	if other, err := a.Acquire(ctx, job.CategoryAsync, "node-b"); err != nil || len(other) != 0 {
		t.Fatalf("node-b claimed %v (%v) while j2 holds the scope", other, err)
	}
	if cur, _ := s.GetJob(ctx, j2.ID); !cur.IsLocked(clock) || cur.LockOwner != "node-a" {
		t.Errorf("j2 claim lost: owner=%q", cur.LockOwner)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	sw, m, s, _ := setup(t, 10)
	j := insertLocked(t, m, s, "crashed", now.Add(-time.Minute))

	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := s.GetJob(context.Background(), j.ID)
		if got.LockOwner == "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.LockOwner != "" {
		t.Fatal("sweep loop did not reset the expired claim")
	}

	stopped := make(chan struct{})
	go func() {
		_ = sw.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not wake the sweeper")
	}
	if err := sw.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStopInterruptsLongWait(t *testing.T) {
	t.Parallel()
	clock := func() time.Time { return now }
	m := manager.New(memory.New(memory.WithClock(clock)), job.NewRegistry())
	cfg := asyncexec.DefaultConfig()
	cfg.ResetExpiredJobsInterval = time.Hour
	sw := sweeper.New(m, sweeper.WithConfig(cfg))

	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := time.Now()
	if err := sw.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %s", elapsed)
	}
}
