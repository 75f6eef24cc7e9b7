package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
)

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobCreated(context.Context, *job.Job) error  { return e.record("created") }
func (e *allHooksExt) OnJobAcquired(context.Context, *job.Job) error { return e.record("acquired") }
func (e *allHooksExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	return e.record("completed")
}
func (e *allHooksExt) OnJobRetrying(context.Context, *job.Job, error, time.Time) error {
	return e.record("retrying")
}
func (e *allHooksExt) OnJobDeadLettered(context.Context, *job.Job, error) error {
	return e.record("deadlettered")
}
func (e *allHooksExt) OnJobReactivated(context.Context, *job.Job) error { return e.record("reactivated") }
func (e *allHooksExt) OnJobSuspended(context.Context, *job.Job) error   { return e.record("suspended") }
func (e *allHooksExt) OnJobActivated(context.Context, *job.Job) error   { return e.record("activated") }
func (e *allHooksExt) OnLockReleased(context.Context, *job.Job, string) error {
	return e.record("released")
}
func (e *allHooksExt) OnShutdown(context.Context) error { return e.record("shutdown") }

// completedOnly opts into a single hook.
type completedOnly struct{ count int }

func (e *completedOnly) Name() string { return "completed-only" }

func (e *completedOnly) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.count++
	return nil
}

// failingExt returns an error from its hook.
type failingExt struct{}

func (failingExt) Name() string { return "failing" }

func (failingExt) OnJobCreated(context.Context, *job.Job) error {
	return errors.New("boom")
}

func TestRegistry_EmitsEveryHook(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())
	e := &allHooksExt{}
	r.Register(e)

	ctx := context.Background()
	j := &job.Job{}
	cause := errors.New("handler failed")

	r.EmitJobCreated(ctx, j)
	r.EmitJobAcquired(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobRetrying(ctx, j, cause, time.Now())
	r.EmitJobDeadLettered(ctx, j, cause)
	r.EmitJobReactivated(ctx, j)
	r.EmitJobSuspended(ctx, j)
	r.EmitJobActivated(ctx, j)
	r.EmitLockReleased(ctx, j, "node-a")
	r.EmitShutdown(ctx)

	want := []string{
		"created", "acquired", "completed", "retrying", "deadlettered",
		"reactivated", "suspended", "activated", "released", "shutdown",
	}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i := range want {
		if e.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, e.calls[i], want[i])
		}
	}
}

func TestRegistry_OptIn(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(nil)
	c := &completedOnly{}
	r.Register(c)

	ctx := context.Background()
	r.EmitJobCreated(ctx, &job.Job{})
	r.EmitJobCompleted(ctx, &job.Job{}, 0)
	r.EmitJobCompleted(ctx, &job.Job{}, 0)

	if c.count != 2 {
		t.Errorf("count = %d, want 2", c.count)
	}
	if len(r.Extensions()) != 1 {
		t.Errorf("Extensions() len = %d, want 1", len(r.Extensions()))
	}
}

func TestRegistry_HookErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(failingExt{})
	r.Register(all)

	r.EmitJobCreated(context.Background(), &job.Job{})

	if len(all.calls) != 1 || all.calls[0] != "created" {
		t.Errorf("calls = %v, want [created]", all.calls)
	}
}
