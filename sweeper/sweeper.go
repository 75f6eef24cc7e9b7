// Package sweeper resets claims whose lease ran out. A node that crashed
// or hung while holding jobs leaves their lock expiration in the past; the
// sweeper clears the claim so acquisition can hand the jobs to a live
// node. Every reset goes through the same version-guarded write as any
// other transition, so a job completed or reclaimed concurrently is
// skipped rather than overwritten.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
)

// Sweeper periodically unlocks jobs with expired claims.
type Sweeper struct {
	manager  *manager.Manager
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
	pageSize int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConfig copies the sweep interval and page size from cfg.
func WithConfig(cfg asyncexec.Config) Option {
	return func(s *Sweeper) {
		s.interval = cfg.ResetExpiredJobsInterval
		s.pageSize = cfg.ResetExpiredJobsPageSize
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a stopped Sweeper that releases jobs through m.
func New(m *manager.Manager, opts ...Option) *Sweeper {
	cfg := asyncexec.DefaultConfig()
	s := &Sweeper{
		manager:  m,
		logger:   slog.Default(),
		now:      time.Now,
		interval: cfg.ResetExpiredJobsInterval,
		pageSize: cfg.ResetExpiredJobsPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce sweeps one page of expired claims and returns how many were
// reset. Jobs changed concurrently are skipped. Storage errors on single
// jobs do not stop the page; they are joined into the returned error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.manager.Store().FindExpiredLockJobs(ctx, now, s.pageSize)
	if err != nil {
		return 0, fmt.Errorf("find expired locks: %w", err)
	}

	var (
		reset int
		errs  []error
	)
	for _, j := range expired {
		if !j.LockExpired(now) {
			continue
		}
		owner := j.LockOwner
		out, err := s.manager.Unacquire(ctx, j)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out == job.Conflict {
			s.logger.Debug("expired lock changed concurrently, skipped",
				slog.String("job_id", j.ID.String()),
			)
			continue
		}
		reset++
		s.logger.Info("reset expired lock",
			slog.String("job_id", j.ID.String()),
			slog.String("previous_owner", owner),
			slog.String("state", string(j.State)),
		)
	}
	return reset, errors.Join(errs...)
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.logger.Info("expired lock sweeper started",
		slog.Duration("interval", s.interval),
		slog.Int("page_size", s.pageSize),
	)
	return nil
}

// Stop wakes the sweeper from its wait and waits for the current cycle
// to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("expired lock sweeper stopped")
	return nil
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	// Sweeps run without a deadline; Stop waits for the current page.
	ctx := context.Background()
	t := time.NewTimer(s.interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		reset, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Error("expired lock sweep failed", slog.String("error", err.Error()))
		}

		// A full page suggests more expired claims are waiting.
		wait := s.interval
		if err == nil && reset >= s.pageSize {
			wait = 0
		}
		t.Reset(wait)
	}
}
