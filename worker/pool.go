package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/acquire"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
)

// QueueManager gates job execution by handler type and tenant. The pool
// calls Acquire before running a dequeued job and Release afterwards.
type QueueManager interface {
	// Acquire reports whether a job of this handler type and tenant may
	// run now, and reserves a slot if so.
	Acquire(handlerType, tenantID string) bool
	// Release frees the slot reserved by Acquire.
	Release(handlerType, tenantID string)
}

// TaskExecutor is an externally managed goroutine pool. When configured
// the pool's workers run on it; if Start fails the pool falls back to
// plain goroutines.
type TaskExecutor interface {
	Start() error
	Go(fn func())
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Running       bool
	QueueDepth    int
	QueueCapacity int
	ActiveWorkers int64
	Acquired      int64
	Offered       int64
	Executed      int64
	Failed        int64
	Rejected      int64
}

// Pool is the node's async executor. It satisfies manager.AsyncExecutor.
type Pool struct {
	manager      *manager.Manager
	acquirer     *acquire.Acquirer
	executor     *Executor
	queueManager QueueManager
	tasks        TaskExecutor
	cfg          asyncexec.Config
	owner        string
	logger       *slog.Logger

	queue chan *job.Job

	mu       sync.RWMutex
	running  bool
	useTasks bool
	stopCh   chan struct{}
	ctx      context.Context
	wg       sync.WaitGroup

	active   atomic.Int64
	acquired atomic.Int64
	offered  atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConfig sets pool size, queue capacity and acquisition waits.
func WithConfig(cfg asyncexec.Config) PoolOption {
	return func(p *Pool) { p.cfg = cfg }
}

// WithLockOwner sets the owner written into claimed jobs.
func WithLockOwner(owner string) PoolOption {
	return func(p *Pool) { p.owner = owner }
}

// WithQueueManager sets the per-handler and per-tenant execution gate.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// WithTaskExecutor runs workers on an external goroutine pool.
func WithTaskExecutor(t TaskExecutor) PoolOption {
	return func(p *Pool) { p.tasks = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a stopped pool.
func NewPool(m *manager.Manager, acq *acquire.Acquirer, exec *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		manager:  m,
		acquirer: acq,
		executor: exec,
		cfg:      asyncexec.DefaultConfig(),
		logger:   slog.Default(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan *job.Job, max(1, p.cfg.QueueCapacity))
	return p
}

// LockOwner returns the owner written into jobs this pool claims.
func (p *Pool) LockOwner() string { return p.owner }

// IsActive reports whether the pool is running.
func (p *Pool) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Start launches the workers and one acquisition loop per category. It
// returns immediately. Handlers run with a context detached from ctx's
// cancellation; Shutdown is the only way to stop the pool.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.useTasks = false
	if p.tasks != nil {
		if err := p.tasks.Start(); err != nil {
			p.logger.Warn("task executor failed to start, using goroutines",
				slog.String("error", err.Error()),
			)
		} else {
			p.useTasks = true
		}
	}

	p.ctx = context.WithoutCancel(ctx)
	p.stopCh = make(chan struct{})
	p.running = true

	p.logger.Info("async executor starting",
		slog.String("lock_owner", p.owner),
		slog.Int("core_pool_size", p.cfg.CorePoolSize),
		slog.Int("queue_capacity", cap(p.queue)),
	)

	runCtx, stop := p.ctx, p.stopCh
	for range max(1, p.cfg.CorePoolSize) {
		p.spawn(func() { p.workerLoop(runCtx, stop) }, p.useTasks)
	}
	p.spawn(func() { p.acquireLoop(runCtx, job.CategoryTimer, p.cfg.DefaultTimerAcquireWait, stop) }, false)
	p.spawn(func() { p.acquireLoop(runCtx, job.CategoryAsync, p.cfg.DefaultAsyncAcquireWait, stop) }, false)

	return nil
}

// Shutdown stops acquisition, lets running handlers finish and releases
// every claimed job still waiting in the queue. Handlers are never
// cancelled; if ctx ends first Shutdown returns ctx.Err() and the
// remaining handlers finish in the background.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	runCtx := p.ctx
	p.mu.Unlock()

	p.logger.Info("async executor stopping", slog.String("lock_owner", p.owner))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("async executor stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("async executor shutdown timed out, handlers still running",
			slog.Int64("active_workers", p.active.Load()),
		)
		err = ctx.Err()
	}

	p.releaseQueued(runCtx)
	return err
}

// ExecuteAsyncJob offers a claimed job for immediate execution. It returns
// false without blocking when the pool is stopped or the queue is full.
func (p *Pool) ExecuteAsyncJob(j *job.Job) bool {
	if !p.enqueue(j) {
		return false
	}
	p.offered.Add(1)
	return true
}

// Stats returns a snapshot of queue and execution counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:       p.IsActive(),
		QueueDepth:    len(p.queue),
		QueueCapacity: cap(p.queue),
		ActiveWorkers: p.active.Load(),
		Acquired:      p.acquired.Load(),
		Offered:       p.offered.Load(),
		Executed:      p.executed.Load(),
		Failed:        p.failed.Load(),
		Rejected:      p.rejected.Load(),
	}
}

func (p *Pool) enqueue(j *job.Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return false
	}
	select {
	case p.queue <- j:
		return true
	default:
		return false
	}
}

func (p *Pool) spawn(fn func(), onTasks bool) {
	p.wg.Add(1)
	run := func() {
		defer p.wg.Done()
		fn()
	}
	if onTasks {
		p.tasks.Go(run)
		return
	}
	go run()
}

func (p *Pool) workerLoop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		select {
		case <-stop:
			return
		case j := <-p.queue:
			select {
			case <-stop:
				p.release(ctx, j)
				return
			default:
			}
			p.run(ctx, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, j *job.Job) {
	if p.queueManager != nil {
		if !p.queueManager.Acquire(j.HandlerType, j.TenantID) {
			p.rejected.Add(1)
			p.logger.Debug("job deferred by queue limits",
				slog.String("job_id", j.ID.String()),
				slog.String("handler_type", j.HandlerType),
				slog.String("tenant_id", j.TenantID),
			)
			p.release(ctx, j)
			return
		}
		defer p.queueManager.Release(j.HandlerType, j.TenantID)
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	if err := p.executor.Execute(ctx, j); err != nil {
		p.failed.Add(1)
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("handler_type", j.HandlerType),
			slog.String("error", err.Error()),
		)
		return
	}
	p.executed.Add(1)
}

// acquireLoop claims due jobs of one category until stop is closed.
func (p *Pool) acquireLoop(ctx context.Context, category job.Category, idle time.Duration, stop <-chan struct{}) {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		t.Reset(p.acquireOnce(ctx, category, idle))
	}
}

// acquireOnce runs one acquisition cycle and returns how long to wait
// before the next one.
func (p *Pool) acquireOnce(ctx context.Context, category job.Category, idle time.Duration) time.Duration {
	free := cap(p.queue) - len(p.queue)
	if free <= 0 {
		return p.cfg.DefaultQueueFullWait
	}
	limit := min(free, p.acquirer.Limit(category))

	jobs, err := p.acquirer.AcquireN(ctx, category, p.owner, limit)
	if err != nil {
		p.logger.Error("acquisition failed",
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)
	}
	p.acquired.Add(int64(len(jobs)))

	for _, j := range jobs {
		if category == job.CategoryTimer && !p.fire(ctx, j) {
			continue
		}
		if !p.enqueue(j) {
			p.release(ctx, j)
		}
	}

	if err == nil && len(jobs) >= limit {
		return 0
	}
	return idle
}

// fire turns a claimed timer into an executable job, keeping the claim.
func (p *Pool) fire(ctx context.Context, j *job.Job) bool {
	out, err := p.manager.MoveTimerJobToExecutableJob(ctx, j)
	if err != nil {
		p.logger.Error("failed to fire timer",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return out == job.Applied
}

// release gives a claimed job back to acquisition.
func (p *Pool) release(ctx context.Context, j *job.Job) {
	if _, err := p.manager.Unacquire(ctx, j); err != nil {
		p.logger.Error("failed to unacquire job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) releaseQueued(ctx context.Context) {
	for {
		select {
		case j := <-p.queue:
			p.release(ctx, j)
		default:
			return
		}
	}
}
