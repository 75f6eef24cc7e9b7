package job_test

import (
	"testing"
	"time"

	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

func TestLockKeepsOwnerAndExpirationPaired(t *testing.T) {
	t.Parallel()
	j := &job.Job{}
	now := time.Now()

	j.Lock("node-a", now.Add(time.Minute))
	if j.LockOwner != "node-a" || j.LockExpiration == nil {
		t.Fatalf("Lock left owner=%q expiration=%v", j.LockOwner, j.LockExpiration)
	}
	if !j.IsLocked(now) {
		t.Error("expected job to be locked")
	}

	j.Unlock()
	if j.LockOwner != "" || j.LockExpiration != nil {
		t.Fatalf("Unlock left owner=%q expiration=%v", j.LockOwner, j.LockExpiration)
	}
	if j.IsLocked(now) {
		t.Error("expected job to be unlocked")
	}
}

func TestLockExpiredBoundary(t *testing.T) {
	t.Parallel()
	now := time.Now()

	past := &job.Job{}
	past.Lock("node-a", now.Add(-time.Millisecond))
	if !past.LockExpired(now) {
		t.Error("lock 1ms in the past should be expired")
	}

	future := &job.Job{}
	future.Lock("node-a", now.Add(time.Millisecond))
	if future.LockExpired(now) {
		t.Error("lock 1ms in the future should not be expired")
	}

	// A lease ending exactly now is free to acquire but not yet swept.
	exact := &job.Job{}
	exact.Lock("node-a", now)
	if exact.IsLocked(now) {
		t.Error("lock ending now should not count as held")
	}
	if exact.LockExpired(now) {
		t.Error("lock ending now should not be swept yet")
	}
}

func TestScopeHolderIsPerClaim(t *testing.T) {
	t.Parallel()
	j1 := &job.Job{ID: id.NewJobID()}
	j2 := &job.Job{ID: id.NewJobID()}

	if j1.ScopeHolder("node-a") == j2.ScopeHolder("node-a") {
		t.Error("two jobs of one node share a scope holder")
	}
	if j1.ScopeHolder("node-a") == j1.ScopeHolder("node-b") {
		t.Error("two nodes share a scope holder for one job")
	}
	if j1.ScopeHolder("node-a") != j1.ScopeHolder("node-a") {
		t.Error("scope holder is not stable")
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to job.State
		want     bool
	}{
		{job.StateTimer, job.StateExecutable, true},
		{job.StateExecutable, job.StateTimer, true},
		{job.StateExecutable, job.StateDeadLetter, true},
		{job.StateTimer, job.StateSuspended, true},
		{job.StateExecutable, job.StateSuspended, true},
		{job.StateSuspended, job.StateExecutable, true},
		{job.StateSuspended, job.StateTimer, true},
		{job.StateDeadLetter, job.StateExecutable, true},
		{job.StateDeadLetter, job.StateTimer, false},
		{job.StateDeadLetter, job.StateSuspended, false},
		{job.StateSuspended, job.StateDeadLetter, false},
		{job.StateExecutable, job.StateExecutable, false},
	}

	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAcquirable(t *testing.T) {
	t.Parallel()
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	locked := &job.Job{State: job.StateExecutable}
	locked.Lock("other", future)

	expired := &job.Job{State: job.StateExecutable}
	expired.Lock("other", past)

	tests := []struct {
		name     string
		j        *job.Job
		category job.Category
		want     bool
	}{
		{"executable immediate", &job.Job{State: job.StateExecutable}, job.CategoryAsync, true},
		{"executable delayed", &job.Job{State: job.StateExecutable, DueDate: &future}, job.CategoryAsync, false},
		{"executable locked", locked, job.CategoryAsync, false},
		{"executable lock expired", expired, job.CategoryAsync, true},
		{"timer due", &job.Job{State: job.StateTimer, DueDate: &past}, job.CategoryTimer, true},
		{"timer not due", &job.Job{State: job.StateTimer, DueDate: &future}, job.CategoryTimer, false},
		{"timer without due date", &job.Job{State: job.StateTimer}, job.CategoryTimer, false},
		{"timer in async pass", &job.Job{State: job.StateTimer, DueDate: &past}, job.CategoryAsync, false},
		{"suspended", &job.Job{State: job.StateSuspended}, job.CategoryAsync, false},
		{"dead letter", &job.Job{State: job.StateDeadLetter}, job.CategoryAsync, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := job.Acquirable(tt.j, tt.category, now); got != tt.want {
				t.Errorf("Acquirable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	due := time.Now()
	j := &job.Job{DueDate: &due, HandlerConfig: []byte("abc")}
	j.Lock("node", due)

	cp := j.Clone()
	cp.HandlerConfig[0] = 'x'
	*cp.DueDate = due.Add(time.Hour)
	*cp.LockExpiration = due.Add(time.Hour)

	if string(j.HandlerConfig) != "abc" {
		t.Error("clone shares handler config")
	}
	if !j.DueDate.Equal(due) || !j.LockExpiration.Equal(due.UTC()) {
		t.Error("clone shares time pointers")
	}
}

func TestQueryMatchesAndPage(t *testing.T) {
	t.Parallel()
	now := time.Now()
	later := now.Add(time.Hour)

	jobs := []*job.Job{
		{State: job.StateTimer, ProcessInstanceID: "p1", DueDate: &now},
		{State: job.StateTimer, ProcessInstanceID: "p2", DueDate: &later},
		{State: job.StateExecutable, ProcessInstanceID: "p1"},
	}

	q := job.Query{State: job.StateTimer, DueBefore: &now}
	var matched []*job.Job
	for _, j := range jobs {
		if q.Matches(j) {
			matched = append(matched, j)
		}
	}
	if len(matched) != 1 || matched[0].ProcessInstanceID != "p1" {
		t.Fatalf("unexpected matches: %+v", matched)
	}

	byProc := job.Query{ProcessInstanceID: "p1"}
	count := 0
	for _, j := range jobs {
		if byProc.Matches(j) {
			count++
		}
	}
	if count != 2 {
		t.Errorf("process filter matched %d, want 2", count)
	}

	if got := (job.Query{Offset: 1, Limit: 1}).Page(jobs); len(got) != 1 || got[0] != jobs[1] {
		t.Errorf("Page returned %v", got)
	}
	if got := (job.Query{Offset: 5}).Page(jobs); got != nil {
		t.Errorf("Page past end returned %v", got)
	}
}
