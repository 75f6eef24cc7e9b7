package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/store/memory"
	"github.com/xraph/asyncexec/store/storetest"
)

func newJob(state job.State, due *time.Time) *job.Job {
	return &job.Job{
		ID:                id.NewJobID(),
		State:             state,
		ProcessInstanceID: "proc-1",
		ExecutionID:       "exec-1",
		DueDate:           due,
		Retries:           3,
		HandlerType:       job.HandlerAsyncContinuation,
		HandlerConfig:     []byte(`{"activity":"a1"}`),
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestInsertAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	j := newJob(job.StateExecutable, nil)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if j.Version != 1 {
		t.Errorf("Version after insert = %d, want 1", j.Version)
	}
	if j.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != j.ID.String() || got.State != job.StateExecutable {
		t.Errorf("GetJob = %+v", got)
	}

	// The returned record is a copy.
	got.HandlerConfig[0] = 'X'
	again, _ := s.GetJob(ctx, j.ID)
	if again.HandlerConfig[0] != '{' {
		t.Error("GetJob returned shared handler config")
	}

	if err := s.InsertJob(ctx, j); !errors.Is(err, asyncexec.ErrJobAlreadyExists) {
		t.Errorf("duplicate insert = %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, asyncexec.ErrJobNotFound) {
		t.Errorf("GetJob unknown = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateJobVersionGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	j := newJob(job.StateExecutable, nil)
	_ = s.InsertJob(ctx, j)

	stale := j.Clone()

	j.Retries = 2
	out, err := s.UpdateJob(ctx, j)
	if err != nil || out != job.Applied {
		t.Fatalf("UpdateJob = %v, %v", out, err)
	}
	if j.Version != 2 {
		t.Errorf("Version = %d, want 2", j.Version)
	}

	stale.Retries = 0
	out, err = s.UpdateJob(ctx, stale)
	if err != nil || out != job.Conflict {
		t.Fatalf("stale UpdateJob = %v, %v; want conflict", out, err)
	}
	if stale.Version != 1 {
		t.Errorf("conflicting update advanced caller version to %d", stale.Version)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Retries != 2 || got.Version != 2 {
		t.Errorf("stored record changed by conflicting write: %+v", got)
	}
}

func TestMissingRecordIsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	j := newJob(job.StateExecutable, nil)
	j.Version = 1
	if out, err := s.UpdateJob(ctx, j); err != nil || out != job.Conflict {
		t.Errorf("UpdateJob missing = %v, %v", out, err)
	}
	if out, err := s.DeleteJob(ctx, j); err != nil || out != job.Conflict {
		t.Errorf("DeleteJob missing = %v, %v", out, err)
	}
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	j := newJob(job.StateExecutable, nil)
	_ = s.InsertJob(ctx, j)

	stale := j.Clone()
	stale.Version = 0
	if out, _ := s.DeleteJob(ctx, stale); out != job.Conflict {
		t.Error("delete with wrong version applied")
	}

	if out, err := s.DeleteJob(ctx, j); err != nil || out != job.Applied {
		t.Fatalf("DeleteJob = %v, %v", out, err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, asyncexec.ErrJobNotFound) {
		t.Errorf("GetJob after delete = %v", err)
	}
}

func TestFindAcquirableJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	early := newJob(job.StateTimer, ptr(now.Add(-2*time.Minute)))
	late := newJob(job.StateTimer, ptr(now.Add(-time.Minute)))
	future := newJob(job.StateTimer, ptr(now.Add(time.Minute)))
	locked := newJob(job.StateTimer, ptr(now.Add(-3*time.Minute)))
	locked.Lock("other", now.Add(time.Hour))
	expired := newJob(job.StateTimer, ptr(now.Add(-4*time.Minute)))
	expired.Lock("crashed", now.Add(-time.Second))
	async := newJob(job.StateExecutable, nil)
	suspended := newJob(job.StateSuspended, nil)
	dead := newJob(job.StateDeadLetter, nil)

	for _, j := range []*job.Job{early, late, future, locked, expired, async, suspended, dead} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	timers, err := s.FindAcquirableJobs(ctx, job.CategoryTimer, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []*job.Job{expired, early, late}
	if len(timers) != len(wantOrder) {
		t.Fatalf("got %d timers, want %d", len(timers), len(wantOrder))
	}
	for i, want := range wantOrder {
		if timers[i].ID.String() != want.ID.String() {
			t.Errorf("timers[%d] = %s, want %s", i, timers[i].ID, want.ID)
		}
	}

	limited, _ := s.FindAcquirableJobs(ctx, job.CategoryTimer, now, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d", len(limited))
	}

	asyncJobs, _ := s.FindAcquirableJobs(ctx, job.CategoryAsync, now, 10)
	if len(asyncJobs) != 1 || asyncJobs[0].ID.String() != async.ID.String() {
		t.Errorf("async acquirable = %v", asyncJobs)
	}
}

func TestFindExpiredLockJobsBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	past := newJob(job.StateExecutable, nil)
	past.Lock("node-a", now.Add(-time.Millisecond))
	future := newJob(job.StateExecutable, nil)
	future.Lock("node-a", now.Add(time.Millisecond))
	unlocked := newJob(job.StateExecutable, nil)

	for _, j := range []*job.Job{past, future, unlocked} {
		_ = s.InsertJob(ctx, j)
	}

	got, err := s.FindExpiredLockJobs(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != past.ID.String() {
		t.Fatalf("FindExpiredLockJobs = %v, want only the past lock", got)
	}
}

func TestListAndCountJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	a := newJob(job.StateDeadLetter, nil)
	b := newJob(job.StateDeadLetter, nil)
	b.ProcessInstanceID = "proc-2"
	c := newJob(job.StateExecutable, nil)
	for _, j := range []*job.Job{a, b, c} {
		_ = s.InsertJob(ctx, j)
	}

	dead, err := s.ListJobs(ctx, job.Query{State: job.StateDeadLetter})
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 2 {
		t.Errorf("dead letters = %d, want 2", len(dead))
	}

	n, _ := s.CountJobs(ctx, job.Query{ProcessInstanceID: "proc-1"})
	if n != 2 {
		t.Errorf("CountJobs proc-1 = %d, want 2", n)
	}

	page, _ := s.ListJobs(ctx, job.Query{Limit: 1, Offset: 2})
	if len(page) != 1 {
		t.Errorf("page = %d, want 1", len(page))
	}
}

func TestScopeLease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	clock := now
	s := memory.New(memory.WithClock(func() time.Time { return clock }))

	if out, _ := s.LockScope(ctx, "p1", "node-a", now.Add(time.Minute)); out != job.Applied {
		t.Fatal("first lease not applied")
	}
	if out, _ := s.LockScope(ctx, "p1", "node-b", now.Add(time.Minute)); out != job.Conflict {
		t.Error("second owner acquired a held lease")
	}
	if out, _ := s.LockScope(ctx, "p1", "node-a", now.Add(time.Minute)); out != job.Conflict {
		t.Error("same owner re-acquired a held lease")
	}
	if out, _ := s.LockScope(ctx, "p2", "node-b", now.Add(time.Minute)); out != job.Applied {
		t.Error("other instance blocked")
	}

	// A foreign unlock is ignored.
	_ = s.UnlockScope(ctx, "p1", "node-b")
	if out, _ := s.LockScope(ctx, "p1", "node-b", now.Add(time.Minute)); out != job.Conflict {
		t.Error("foreign unlock released the lease")
	}

	_ = s.UnlockScope(ctx, "p1", "node-a")
	if out, _ := s.LockScope(ctx, "p1", "node-b", now.Add(time.Minute)); out != job.Applied {
		t.Error("lease not free after owner unlock")
	}

	// Expired leases can be taken over.
	clock = now.Add(2 * time.Minute)
	if out, _ := s.LockScope(ctx, "p1", "node-c", clock.Add(time.Minute)); out != job.Applied {
		t.Error("expired lease not taken over")
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	_ = s.Close()

	if err := s.Ping(ctx); !errors.Is(err, asyncexec.ErrStoreClosed) {
		t.Errorf("Ping = %v", err)
	}
	if err := s.InsertJob(ctx, newJob(job.StateExecutable, nil)); !errors.Is(err, asyncexec.ErrStoreClosed) {
		t.Errorf("InsertJob = %v", err)
	}
	if _, err := s.FindAcquirableJobs(ctx, job.CategoryAsync, time.Now(), 1); !errors.Is(err, asyncexec.ErrStoreClosed) {
		t.Errorf("FindAcquirableJobs = %v", err)
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) job.Store { return memory.New() })
}
