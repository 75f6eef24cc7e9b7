// Package storetest is the conformance suite every job.Store backend runs
// in its own tests.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// Factory returns an empty, migrated store. Each subtest gets its own.
type Factory func(t *testing.T) job.Store

// Run exercises the full job.Store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, job.Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"RoundTripsEveryField", testRoundTrip},
		{"UpdateVersionGuard", testUpdateVersionGuard},
		{"MissingRecordIsConflict", testMissingRecordIsConflict},
		{"DeleteVersionGuard", testDeleteVersionGuard},
		{"FindAcquirable", testFindAcquirable},
		{"FindExpiredLocks", testFindExpiredLocks},
		{"ListAndCount", testListAndCount},
		{"ScopeLease", testScopeLease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewJob returns an unsaved job in state with an optional due date.
func NewJob(state job.State, due *time.Time) *job.Job {
	return &job.Job{
		ID:                id.NewJobID(),
		State:             state,
		ProcessInstanceID: "proc-1",
		ExecutionID:       "exec-1",
		TenantID:          "acme",
		DueDate:           due,
		Retries:           3,
		HandlerType:       job.HandlerAsyncContinuation,
		HandlerConfig:     []byte(`{"activity":"a1"}`),
	}
}

func at(t time.Time) *time.Time {
	u := t.UTC().Truncate(time.Millisecond)
	return &u
}

func mustInsert(t *testing.T, s job.Store, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := s.InsertJob(context.Background(), j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}
}

func ids(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID.String()
	}
	return out
}

func testInsertAndGet(t *testing.T, s job.Store) {
	ctx := context.Background()
	j := NewJob(job.StateExecutable, nil)
	mustInsert(t, s, j)

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
	if got.ID.String() != j.ID.String() || got.State != job.StateExecutable || got.Version != 1 {
		t.Errorf("GetJob = %+v", got)
	}

	if err := s.InsertJob(ctx, j); !errors.Is(err, asyncexec.ErrJobAlreadyExists) {
		t.Errorf("duplicate insert = %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, asyncexec.ErrJobNotFound) {
		t.Errorf("GetJob unknown = %v, want ErrJobNotFound", err)
	}
}

func testRoundTrip(t *testing.T, s job.Store) {
	ctx := context.Background()
	now := time.Now()

	j := NewJob(job.StateSuspended, at(now.Add(time.Minute)))
	j.SuspendedFrom = job.StateTimer
	j.ProcessDefinitionID = "order:3"
	j.Lock("node-a", *at(now.Add(5 * time.Minute)))
	j.SetException("boom", "stack line 1\nstack line 2")
	j.Exclusive = true
	j.Interrupting = true
	j.Repeat = "R3/PT10M"
	j.EndDate = at(now.Add(time.Hour))
	j.MaxIterations = 3
	mustInsert(t, s, j)

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	checks := []struct {
		field string
		ok    bool
	}{
		{"SuspendedFrom", got.SuspendedFrom == job.StateTimer},
		{"ProcessDefinitionID", got.ProcessDefinitionID == "order:3"},
		{"TenantID", got.TenantID == "acme"},
		{"DueDate", got.DueDate != nil && got.DueDate.Equal(*j.DueDate)},
		{"LockOwner", got.LockOwner == "node-a"},
		{"LockExpiration", got.LockExpiration != nil && got.LockExpiration.Equal(*j.LockExpiration)},
		{"Retries", got.Retries == 3},
		{"ExceptionMessage", got.ExceptionMessage == "boom"},
		{"ExceptionStack", got.ExceptionStack == j.ExceptionStack},
		{"HandlerType", got.HandlerType == j.HandlerType},
		{"HandlerConfig", bytes.Equal(got.HandlerConfig, j.HandlerConfig)},
		{"Exclusive", got.Exclusive},
		{"Interrupting", got.Interrupting},
		{"Repeat", got.Repeat == "R3/PT10M"},
		{"EndDate", got.EndDate != nil && got.EndDate.Equal(*j.EndDate)},
		{"MaxIterations", got.MaxIterations == 3},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s did not round-trip: %+v", c.field, got)
		}
	}
}

func testUpdateVersionGuard(t *testing.T, s job.Store) {
	ctx := context.Background()
	j := NewJob(job.StateExecutable, nil)
	mustInsert(t, s, j)
	stale := j.Clone()

	j.Retries = 2
	j.Unlock()
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

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Retries != 2 || got.Version != 2 {
		t.Errorf("stored record changed by conflicting write: %+v", got)
	}
}

func testMissingRecordIsConflict(t *testing.T, s job.Store) {
	ctx := context.Background()
	j := NewJob(job.StateExecutable, nil)
	j.Version = 1
	if out, err := s.UpdateJob(ctx, j); err != nil || out != job.Conflict {
		t.Errorf("UpdateJob missing = %v, %v", out, err)
	}
	if out, err := s.DeleteJob(ctx, j); err != nil || out != job.Conflict {
		t.Errorf("DeleteJob missing = %v, %v", out, err)
	}
}

func testDeleteVersionGuard(t *testing.T, s job.Store) {
	ctx := context.Background()
	j := NewJob(job.StateExecutable, nil)
	mustInsert(t, s, j)

	stale := j.Clone()
	stale.Version = 7
	if out, err := s.DeleteJob(ctx, stale); err != nil || out != job.Conflict {
		t.Errorf("delete with wrong version = %v, %v", out, err)
	}

	if out, err := s.DeleteJob(ctx, j); err != nil || out != job.Applied {
		t.Fatalf("DeleteJob = %v, %v", out, err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, asyncexec.ErrJobNotFound) {
		t.Errorf("GetJob after delete = %v", err)
	}
}

func testFindAcquirable(t *testing.T, s job.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	early := NewJob(job.StateTimer, at(now.Add(-2*time.Minute)))
	late := NewJob(job.StateTimer, at(now.Add(-time.Minute)))
	future := NewJob(job.StateTimer, at(now.Add(time.Minute)))
	locked := NewJob(job.StateTimer, at(now.Add(-3*time.Minute)))
	locked.Lock("other", now.Add(time.Hour))
	expired := NewJob(job.StateTimer, at(now.Add(-4*time.Minute)))
	expired.Lock("crashed", now.Add(-time.Second))
	async := NewJob(job.StateExecutable, nil)
	delayed := NewJob(job.StateExecutable, at(now.Add(time.Hour)))
	suspended := NewJob(job.StateSuspended, nil)
	dead := NewJob(job.StateDeadLetter, nil)
	mustInsert(t, s, early, late, future, locked, expired, async, delayed, suspended, dead)

	timers, err := s.FindAcquirableJobs(ctx, job.CategoryTimer, now, 10)
	if err != nil {
		t.Fatalf("FindAcquirableJobs timer: %v", err)
	}
	want := ids([]*job.Job{expired, early, late})
	got := ids(timers)
	if len(got) != len(want) {
		t.Fatalf("timers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("timers[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	limited, err := s.FindAcquirableJobs(ctx, job.CategoryTimer, now, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("limit ignored: got %d, %v", len(limited), err)
	}

	asyncJobs, err := s.FindAcquirableJobs(ctx, job.CategoryAsync, now, 10)
	if err != nil {
		t.Fatalf("FindAcquirableJobs async: %v", err)
	}
	if len(asyncJobs) != 1 || asyncJobs[0].ID.String() != async.ID.String() {
		t.Errorf("async acquirable = %v", ids(asyncJobs))
	}
}

func testFindExpiredLocks(t *testing.T, s job.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	past := NewJob(job.StateExecutable, nil)
	past.Lock("node-a", now.Add(-time.Millisecond))
	future := NewJob(job.StateTimer, at(now))
	future.Lock("node-a", now.Add(time.Millisecond))
	dead := NewJob(job.StateDeadLetter, nil)
	dead.Lock("node-b", now.Add(-time.Minute))
	unlocked := NewJob(job.StateExecutable, nil)
	mustInsert(t, s, past, future, dead, unlocked)

	got, err := s.FindExpiredLockJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("FindExpiredLockJobs: %v", err)
	}
	if len(got) != 2 || got[0].ID.String() != dead.ID.String() || got[1].ID.String() != past.ID.String() {
		t.Fatalf("FindExpiredLockJobs = %v, want [%s %s]", ids(got), dead.ID, past.ID)
	}

	page, err := s.FindExpiredLockJobs(ctx, now, 1)
	if err != nil || len(page) != 1 {
		t.Errorf("limit ignored: got %d, %v", len(page), err)
	}
}

func testListAndCount(t *testing.T, s job.Store) {
	ctx := context.Background()

	a := NewJob(job.StateDeadLetter, nil)
	b := NewJob(job.StateDeadLetter, nil)
	b.ProcessInstanceID = "proc-2"
	b.TenantID = "globex"
	c := NewJob(job.StateExecutable, nil)
	c.HandlerType = "send-email"
	mustInsert(t, s, a, b, c)

	tests := []struct {
		name string
		q    job.Query
		want int
	}{
		{"all", job.Query{}, 3},
		{"state", job.Query{State: job.StateDeadLetter}, 2},
		{"process instance", job.Query{ProcessInstanceID: "proc-1"}, 2},
		{"tenant", job.Query{TenantID: "globex"}, 1},
		{"handler", job.Query{HandlerType: "send-email"}, 1},
		{"combined", job.Query{State: job.StateDeadLetter, TenantID: "acme"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountJobs(ctx, tt.q)
			if err != nil || n != int64(tt.want) {
				t.Errorf("CountJobs = %d, %v; want %d", n, err, tt.want)
			}
			list, err := s.ListJobs(ctx, tt.q)
			if err != nil || len(list) != tt.want {
				t.Errorf("ListJobs = %d, %v; want %d", len(list), err, tt.want)
			}
		})
	}

	page, err := s.ListJobs(ctx, job.Query{Limit: 1, Offset: 2})
	if err != nil || len(page) != 1 {
		t.Errorf("page = %d, %v; want 1", len(page), err)
	}
	n, err := s.CountJobs(ctx, job.Query{Limit: 1})
	if err != nil || n != 3 {
		t.Errorf("CountJobs ignores paging: got %d, %v", n, err)
	}
}

func testScopeLease(t *testing.T, s job.Store) {
	ctx := context.Background()
	until := time.Now().Add(time.Minute)

	lock := func(pi, owner string, until time.Time) job.Outcome {
		t.Helper()
		out, err := s.LockScope(ctx, pi, owner, until)
		if err != nil {
			t.Fatalf("LockScope(%s, %s): %v", pi, owner, err)
		}
		return out
	}

	if lock("p1", "node-a", until) != job.Applied {
		t.Fatal("first lease not applied")
	}
	if lock("p1", "node-b", until) != job.Conflict {
		t.Error("second owner acquired a held lease")
	}
	if lock("p1", "node-a", until) != job.Conflict {
		t.Error("same owner re-acquired a held lease")
	}
	if lock("p2", "node-b", until) != job.Applied {
		t.Error("other instance blocked")
	}

	if err := s.UnlockScope(ctx, "p1", "node-b"); err != nil {
		t.Fatalf("UnlockScope: %v", err)
	}
	if lock("p1", "node-b", until) != job.Conflict {
		t.Error("foreign unlock released the lease")
	}

	if err := s.UnlockScope(ctx, "p1", "node-a"); err != nil {
		t.Fatalf("UnlockScope: %v", err)
	}
	if lock("p1", "node-b", until) != job.Applied {
		t.Error("lease not free after owner unlock")
	}

	if lock("p3", "node-a", time.Now().Add(-time.Second)) != job.Applied {
		t.Fatal("lease with a past expiry not applied")
	}
	if lock("p3", "node-c", until) != job.Applied {
		t.Error("expired lease not taken over")
	}

	// A node that takes over its own expired lease for another job keeps
	// the new lease when the stale claim is released.
	stale := (&job.Job{ID: id.NewJobID()}).ScopeHolder("node-a")
	fresh := (&job.Job{ID: id.NewJobID()}).ScopeHolder("node-a")
	if lock("p4", stale, time.Now().Add(-time.Second)) != job.Applied {
		t.Fatal("stale lease not applied")
	}
	if lock("p4", fresh, until) != job.Applied {
		t.Fatal("expired lease not taken over by the same node")
	}
	for _, holder := range []string{stale, "node-a"} {
		if err := s.UnlockScope(ctx, "p4", holder); err != nil {
			t.Fatalf("UnlockScope(%s): %v", holder, err)
		}
		if lock("p4", "node-b", until) != job.Conflict {
			t.Errorf("UnlockScope(%s) released a newer claim's lease", holder)
		}
	}
}
