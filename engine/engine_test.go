package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/backoff"
	"github.com/xraph/asyncexec/dlq"
	"github.com/xraph/asyncexec/engine"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/scope"
	"github.com/xraph/asyncexec/store/memory"
	"github.com/xraph/asyncexec/timer"
)

type emailInput struct {
	To string `json:"to"`
}

var exec = job.Execution{ID: "exec-1", ProcessInstanceID: "proc-1"}

func fastConfig() asyncexec.Config {
	cfg := asyncexec.DefaultConfig()
	cfg.NodeName = "node-a"
	cfg.CorePoolSize = 2
	cfg.DefaultTimerAcquireWait = 10 * time.Millisecond
	cfg.DefaultAsyncAcquireWait = 10 * time.Millisecond
	cfg.DefaultQueueFullWait = 10 * time.Millisecond
	cfg.ResetExpiredJobsInterval = 20 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]engine.Option{engine.WithConfig(fastConfig())}, opts...)
	eng, err := engine.New(s, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return eng, s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func gone(s *memory.Store, j *job.Job) func() bool {
	return func() bool {
		_, err := s.GetJob(context.Background(), j.ID)
		return errors.Is(err, asyncexec.ErrJobNotFound)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, asyncexec.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := asyncexec.DefaultConfig()
	cfg.CorePoolSize = 0
	_, err := engine.New(memory.New(), engine.WithConfig(cfg))
	if !errors.Is(err, asyncexec.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewGeneratesNodeName(t *testing.T) {
	eng, err := engine.New(memory.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.NodeName() == "" {
		t.Fatal("expected a generated node name")
	}
	if eng.Pool().LockOwner() != eng.NodeName() {
		t.Errorf("pool owner = %q, want %q", eng.Pool().LockOwner(), eng.NodeName())
	}
	if eng.QueueManager() != nil {
		t.Error("expected no queue manager without limits")
	}
}

func TestAsyncRunsHandler(t *testing.T) {
	eng, s := newEngine(t)

	got := make(chan string, 1)
	engine.Register(eng, job.NewDefinition("send-email",
		func(_ context.Context, j *job.Job, in emailInput) error {
			if j.LockOwner != "node-a" {
				t.Errorf("lock owner = %q", j.LockOwner)
			}
			got <- in.To
			return nil
		}))

	j, err := engine.Async(context.Background(), eng, exec, "send-email", emailInput{To: "a@example.com"})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}

	select {
	case to := <-got:
		if to != "a@example.com" {
			t.Errorf("to = %q", to)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not run")
	}
	waitFor(t, "job deletion", gone(s, j))
}

func TestAsyncTakesTenantFromScope(t *testing.T) {
	eng, s := newEngine(t)

	tenants := make(chan string, 1)
	engine.Register(eng, job.NewDefinition("noop",
		func(ctx context.Context, j *job.Job, _ struct{}) error {
			tenants <- scope.Tenant(ctx) + "/" + j.TenantID
			return nil
		}))

	ctx := scope.WithTenant(context.Background(), "acme")
	j, err := engine.Async(ctx, eng, exec, "noop", struct{}{})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}
	if j.TenantID != "acme" {
		t.Errorf("TenantID = %q", j.TenantID)
	}

	select {
	case got := <-tenants:
		if got != "acme/acme" {
			t.Errorf("scope/job tenant = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not run")
	}
	waitFor(t, "job deletion", gone(s, j))
}

func TestTimerFires(t *testing.T) {
	eng, s := newEngine(t)

	fired := make(chan job.State, 1)
	engine.Register(eng, job.NewDefinition("reminder",
		func(_ context.Context, j *job.Job, _ emailInput) error {
			fired <- j.State
			return nil
		}))

	j, err := engine.Timer(context.Background(), eng, timer.Duration("PT0.02S"), exec, "reminder", emailInput{})
	if err != nil {
		t.Fatalf("Timer: %v", err)
	}
	if j.State != job.StateTimer {
		t.Fatalf("state = %s, want timer", j.State)
	}

	select {
	case st := <-fired:
		if st != job.StateExecutable {
			t.Errorf("handler saw state %s", st)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
	waitFor(t, "job deletion", gone(s, j))
}

func TestTimerRejectsBadExpression(t *testing.T) {
	eng, _ := newEngine(t)
	_, err := engine.Timer(context.Background(), eng, timer.Duration("soon"), exec, "", struct{}{})
	if err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}

func TestRetriesThenDeadLetterThenReplay(t *testing.T) {
	cfg := fastConfig()
	cfg.DefaultRetries = 1
	eng, s := newEngine(t,
		engine.WithConfig(cfg),
		engine.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
	)

	var attempts, healthy atomic.Int32
	engine.Register(eng, job.NewDefinition("flaky",
		func(context.Context, *job.Job, struct{}) error {
			attempts.Add(1)
			if healthy.Load() == 1 {
				return nil
			}
			return errors.New("smtp unavailable")
		}))

	j, err := engine.Async(context.Background(), eng, exec, "flaky", struct{}{})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}

	waitFor(t, "dead letter", func() bool {
		n, err := eng.DLQ().Count(context.Background(), dlq.ListOpts{})
		return err == nil && n == 1
	})
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}

	entry, err := eng.DLQ().Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("DLQ Get: %v", err)
	}
	if entry.Error != "smtp unavailable" {
		t.Errorf("entry error = %q", entry.Error)
	}

	healthy.Store(1)
	if _, outcome, err := eng.DLQ().Replay(context.Background(), j.ID, 2); err != nil || outcome != job.Applied {
		t.Fatalf("Replay: outcome=%s err=%v", outcome, err)
	}
	waitFor(t, "replayed job completion", gone(s, j))
}

func TestStopReleasesAndIsIdempotent(t *testing.T) {
	s := memory.New()
	eng, err := engine.New(s, engine.WithConfig(fastConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !eng.Pool().IsActive() {
		t.Fatal("expected the executor to be active")
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if eng.Pool().IsActive() {
		t.Error("expected the executor to be stopped")
	}
	if err := eng.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStartWithoutAutoActivate(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoActivate = false
	s := memory.New()
	eng, err := engine.New(s, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = eng.Stop(ctx) }()

	ran := make(chan struct{}, 1)
	engine.Register(eng, job.NewDefinition("noop",
		func(context.Context, *job.Job, struct{}) error {
			ran <- struct{}{}
			return nil
		}))
	if _, err := engine.Async(ctx, eng, exec, "noop", struct{}{}); err != nil {
		t.Fatalf("Async: %v", err)
	}

	select {
	case <-ran:
		t.Fatal("handler ran on an inactive executor")
	case <-time.After(50 * time.Millisecond):
	}

	if err := eng.StartExecutor(ctx); err != nil {
		t.Fatalf("StartExecutor: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not run after StartExecutor")
	}
}
