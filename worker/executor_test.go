package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
	"github.com/xraph/asyncexec/middleware"
	"github.com/xraph/asyncexec/store/memory"
	"github.com/xraph/asyncexec/worker"
)

type completions struct {
	got []time.Duration
}

func (c *completions) Name() string { return "completions" }

func (c *completions) OnJobCompleted(_ context.Context, _ *job.Job, elapsed time.Duration) error {
	c.got = append(c.got, elapsed)
	return nil
}

func newExecutor(t *testing.T, h job.HandlerFunc) (*worker.Executor, *manager.Manager, *memory.Store, *completions) {
	t.Helper()
	s := memory.New()
	handlers := job.NewRegistry()
	handlers.Register("work", h)

	seen := &completions{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(seen)

	m := manager.New(s, handlers, manager.WithExtensions(reg), manager.WithDefaultRetries(1))
	return worker.NewExecutor(m, slog.Default(), middleware.Recover(slog.Default())), m, s, seen
}

func persisted(t *testing.T, m *manager.Manager) *job.Job {
	t.Helper()
	j := m.CreateAsyncJob(exec, false, job.WithHandler("work", nil))
	if err := m.ScheduleAsyncJob(context.Background(), j); err != nil {
		t.Fatalf("ScheduleAsyncJob: %v", err)
	}
	return j
}

func TestExecutorSuccessCompletes(t *testing.T) {
	t.Parallel()
	e, m, s, seen := newExecutor(t, func(context.Context, *job.Job) error { return nil })
	j := persisted(t, m)

	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := s.GetJob(context.Background(), j.ID); err == nil {
		t.Error("completed job still stored")
	}
	if len(seen.got) != 1 {
		t.Errorf("JobCompleted emitted %d times, want 1", len(seen.got))
	}
}

func TestExecutorFailureRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	e, m, s, _ := newExecutor(t, func(context.Context, *job.Job) error { return boom })
	j := persisted(t, m)

	if err := e.Execute(context.Background(), j); !errors.Is(err, boom) {
		t.Fatalf("Execute = %v, want handler error", err)
	}
	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateTimer || got.Retries != 0 {
		t.Fatalf("after first failure: state=%s retries=%d", got.State, got.Retries)
	}

	if err := e.Execute(context.Background(), got); !errors.Is(err, boom) {
		t.Fatalf("Execute = %v, want handler error", err)
	}
	got, err = s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateDeadLetter {
		t.Errorf("state = %s, want deadletter", got.State)
	}
	if got.ExceptionMessage != "boom" {
		t.Errorf("ExceptionMessage = %q", got.ExceptionMessage)
	}
}

func TestExecutorPanicKeepsStack(t *testing.T) {
	t.Parallel()
	e, m, s, _ := newExecutor(t, func(context.Context, *job.Job) error { panic("nil map") })
	j := persisted(t, m)

	var pe *middleware.PanicError
	if err := e.Execute(context.Background(), j); !errors.As(err, &pe) {
		t.Fatalf("Execute = %v, want *PanicError", err)
	}
	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ExceptionStack != pe.StackTrace() {
		t.Error("stored exception detail is not the handler stack")
	}
}

func TestExecutorConflictIsSwallowed(t *testing.T) {
	t.Parallel()
	e, m, s, seen := newExecutor(t, func(context.Context, *job.Job) error { return nil })
	j := persisted(t, m)

	// Another node moves the record on while this one runs a stale copy.
	other := j.Clone()
	if out, err := s.UpdateJob(context.Background(), other); err != nil || out != job.Applied {
		t.Fatalf("UpdateJob = %v, %v", out, err)
	}

	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute = %v, want conflict swallowed", err)
	}
	if _, err := s.GetJob(context.Background(), j.ID); err != nil {
		t.Errorf("record removed despite conflict: %v", err)
	}
	if len(seen.got) != 0 {
		t.Error("JobCompleted emitted for a conflicting completion")
	}
}
