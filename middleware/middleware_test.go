package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/middleware"
	"github.com/xraph/asyncexec/scope"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{HandlerType: "test", ID: id.NewJobID()}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), j, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{HandlerType: "panicky", ID: id.NewJobID()}

	err := mw(context.Background(), j, func(_ context.Context) error {
		panic("test panic")
	})
	var pe *middleware.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T (%v)", err, err)
	}
	if got := err.Error(); got != "panic: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
	if !strings.Contains(pe.StackTrace(), "goroutine") {
		t.Errorf("stack trace not captured: %q", pe.StackTrace())
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	called := false
	err := mw(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		err     error
		want    string
	}{
		{"success", 3, nil, "level=DEBUG msg=\"job completed\""},
		{"failure with retries", 3, errors.New("fail"), "level=INFO msg=\"job failed\""},
		{"last attempt", 0, errors.New("fail"), "level=WARN msg=\"job failed on last attempt\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			mw := middleware.Logging(logger)
			j := &job.Job{HandlerType: "log-test", ID: id.NewJobID(), Retries: tt.retries, LockOwner: "node-a"}

			err := mw(context.Background(), j, func(_ context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("log output missing %q:\n%s", tt.want, out)
			}
			if !strings.Contains(out, "lock_owner=node-a") {
				t.Errorf("log output missing lock_owner:\n%s", out)
			}
		})
	}
}

func TestScope_RestoresFromJob(t *testing.T) {
	mw := middleware.Scope()
	j := &job.Job{
		ID:                id.NewJobID(),
		TenantID:          "acme",
		ProcessInstanceID: "proc-1",
		ExecutionID:       "exec-1",
	}

	err := mw(context.Background(), j, func(ctx context.Context) error {
		s, ok := scope.From(ctx)
		if !ok {
			t.Fatal("expected scope in context")
		}
		if s.TenantID != "acme" || s.ProcessInstanceID != "proc-1" || s.ExecutionID != "exec-1" {
			t.Errorf("scope = %+v", s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScope_NoOpWhenEmpty(t *testing.T) {
	mw := middleware.Scope()
	err := mw(context.Background(), &job.Job{ID: id.NewJobID()}, func(ctx context.Context) error {
		if _, ok := scope.From(ctx); ok {
			t.Fatal("expected no scope in context for unscoped job")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name        string
		handlerType string
		fallback    time.Duration
		byHandler   map[string]time.Duration
		wantLimit   bool
	}{
		{"fallback applies", "a", 50 * time.Millisecond, nil, true},
		{"per handler wins", "a", 0, map[string]time.Duration{"a": 50 * time.Millisecond}, true},
		{"zero disables", "a", time.Second, map[string]time.Duration{"a": 0}, false},
		{"no limit", "b", 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := middleware.Timeout(slog.Default(), tt.fallback, tt.byHandler)
			j := &job.Job{ID: id.NewJobID(), HandlerType: tt.handlerType}

			err := mw(context.Background(), j, func(ctx context.Context) error {
				_, has := ctx.Deadline()
				if has != tt.wantLimit {
					t.Errorf("deadline set = %v, want %v", has, tt.wantLimit)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTimeout_CancelsSlowHandler(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), 10*time.Millisecond, nil)
	err := mw(context.Background(), &job.Job{ID: id.NewJobID()}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
