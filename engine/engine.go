package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/acquire"
	"github.com/xraph/asyncexec/backoff"
	"github.com/xraph/asyncexec/dlq"
	"github.com/xraph/asyncexec/ext"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
	"github.com/xraph/asyncexec/memqueue"
	mw "github.com/xraph/asyncexec/middleware"
	"github.com/xraph/asyncexec/observability"
	"github.com/xraph/asyncexec/queue"
	"github.com/xraph/asyncexec/scope"
	"github.com/xraph/asyncexec/sweeper"
	"github.com/xraph/asyncexec/timer"
	"github.com/xraph/asyncexec/worker"
)

// Engine is one node of the job executor.
type Engine struct {
	cfg        asyncexec.Config
	store      job.Store
	logger     *slog.Logger
	extensions *ext.Registry
	handlers   *job.Registry
	memq       *memqueue.Registry
	bo         backoff.Strategy
	mws        []mw.Middleware
	exts       []ext.Extension

	manager      *manager.Manager
	acquirer     *acquire.Acquirer
	pool         *worker.Pool
	sweeper      *sweeper.Sweeper
	dlqService   *dlq.Service
	queueManager *queue.Manager
	collector    *observability.Collector

	limits          []queue.Limit
	tenantLimits    []queue.TenantLimit
	tasks           worker.TaskExecutor
	defaultTimeout  time.Duration
	handlerTimeouts map[string]time.Duration

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the executor configuration. Defaults to
// asyncexec.DefaultConfig().
func WithConfig(cfg asyncexec.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware appends middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff overrides the retry strategy named by cfg.RetryBackoff.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithQueueLimits sets per-handler-type concurrency and rate limits.
func WithQueueLimits(limits ...queue.Limit) Option {
	return func(eng *Engine) { eng.limits = append(eng.limits, limits...) }
}

// WithTenantLimits sets per-tenant concurrency and rate limits.
func WithTenantLimits(limits ...queue.TenantLimit) Option {
	return func(eng *Engine) { eng.tenantLimits = append(eng.tenantLimits, limits...) }
}

// WithTaskExecutor runs the pool's workers on an external goroutine pool.
func WithTaskExecutor(t worker.TaskExecutor) Option {
	return func(eng *Engine) { eng.tasks = t }
}

// WithHandlerTimeouts bounds handler execution. byHandler overrides
// fallback per handler type; zero means no deadline.
func WithHandlerTimeouts(fallback time.Duration, byHandler map[string]time.Duration) Option {
	return func(eng *Engine) {
		eng.defaultTimeout = fallback
		eng.handlerTimeouts = byHandler
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates a stopped Engine on top of s.
func New(s job.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, asyncexec.ErrNoStore
	}

	eng := &Engine{
		cfg:      asyncexec.DefaultConfig(),
		store:    s,
		logger:   slog.Default(),
		handlers: job.NewRegistry(),
		memq:     memqueue.New(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	if eng.cfg.NodeName == "" {
		eng.cfg.NodeName = id.NewNodeID().String()
	}
	if eng.bo == nil {
		// Validate has already accepted the name.
		eng.bo, _ = backoff.Named(eng.cfg.RetryBackoff, eng.cfg.RetryWaitTime)
	}

	logger := eng.logger.With(slog.String("node", eng.cfg.NodeName))

	eng.extensions = ext.NewRegistry(logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/asyncexec/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	eng.manager = manager.New(s, eng.handlers,
		manager.WithExtensions(eng.extensions),
		manager.WithMemQueue(eng.memq),
		manager.WithBackoff(eng.bo),
		manager.WithDefaultRetries(eng.cfg.DefaultRetries),
		manager.WithLockOwner(eng.cfg.NodeName),
		manager.WithAsyncJobLockTime(eng.cfg.AsyncJobLockTime),
		manager.WithLogger(logger),
	)

	eng.acquirer = acquire.New(s,
		acquire.WithConfig(eng.cfg),
		acquire.WithExtensions(eng.extensions),
		acquire.WithLogger(logger),
	)

	executor := worker.NewExecutor(eng.manager, logger, eng.middleware(logger)...)

	poolOpts := []worker.PoolOption{
		worker.WithConfig(eng.cfg),
		worker.WithLockOwner(eng.cfg.NodeName),
		worker.WithLogger(logger),
	}
	if len(eng.limits) > 0 || len(eng.tenantLimits) > 0 {
		eng.queueManager = queue.NewManager(eng.limits...)
		for _, l := range eng.tenantLimits {
			eng.queueManager.SetTenantLimit(l)
		}
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}
	if eng.tasks != nil {
		poolOpts = append(poolOpts, worker.WithTaskExecutor(eng.tasks))
	}
	eng.pool = worker.NewPool(eng.manager, eng.acquirer, executor, poolOpts...)
	eng.manager.SetAsyncExecutor(eng.pool)

	eng.sweeper = sweeper.New(eng.manager,
		sweeper.WithConfig(eng.cfg),
		sweeper.WithLogger(logger),
	)
	eng.dlqService = dlq.NewService(eng.manager, logger)
	eng.collector = observability.NewCollector(eng.pool, eng.cfg.NodeName,
		observability.WithJobCounts(s, 5*time.Second),
		observability.WithCollectorLogger(logger),
	)

	return eng, nil
}

// middleware builds the default stack: recover, tracing, metrics,
// logging, scope, timeout, then any user middleware.
func (eng *Engine) middleware(logger *slog.Logger) []mw.Middleware {
	tracing := mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/asyncexec"))
	}
	metrics := mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/asyncexec"))
	}

	all := []mw.Middleware{
		mw.Recover(logger),
		tracing,
		metrics,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(logger, eng.defaultTimeout, eng.handlerTimeouts),
	}
	return append(all, eng.mws...)
}

// Register registers a typed handler definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.handlers, def)
}

// Start starts the expired-lock sweeper and, when AutoActivate is set,
// the node executor.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.started {
		return nil
	}

	var g errgroup.Group
	if eng.cfg.AutoActivate {
		g.Go(func() error { return eng.pool.Start(ctx) })
	}
	g.Go(func() error { return eng.sweeper.Start(ctx) })
	if err := g.Wait(); err != nil {
		return errors.Join(err, eng.shutdown(ctx))
	}

	eng.started = true
	eng.logger.Info("asyncexec engine started",
		slog.String("node", eng.cfg.NodeName),
		slog.Bool("executor", eng.cfg.AutoActivate),
	)
	return nil
}

// StartExecutor starts the node executor on demand, for nodes configured
// without AutoActivate.
func (eng *Engine) StartExecutor(ctx context.Context) error {
	return eng.pool.Start(ctx)
}

// Stop stops acquisition and the sweeper, waits for running handlers and
// releases claimed jobs that never started. Without a deadline on ctx,
// Stop waits at most ShutdownTimeout.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.started {
		return nil
	}
	eng.started = false

	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := eng.shutdown(ctx)
	eng.extensions.EmitShutdown(ctx)
	eng.logger.Info("asyncexec engine stopped", slog.String("node", eng.cfg.NodeName))
	return err
}

func (eng *Engine) shutdown(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return eng.pool.Shutdown(ctx) })
	g.Go(func() error { return eng.sweeper.Stop(ctx) })
	return g.Wait()
}

// Async creates and schedules an executable job whose handler receives
// config as JSON. A zero exec.TenantID is taken from ctx.
func Async[T any](ctx context.Context, eng *Engine, exec job.Execution, handlerType string, config T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config for job %q: %w", handlerType, err)
	}
	opts = append([]job.Option{job.WithHandler(handlerType, data)}, opts...)
	return eng.AsyncRaw(ctx, exec, false, opts...)
}

// AsyncRaw creates and schedules an executable job. Exclusive jobs of the
// same process instance never run concurrently across the cluster.
func (eng *Engine) AsyncRaw(ctx context.Context, exec job.Execution, exclusive bool, opts ...job.Option) (*job.Job, error) {
	exec = withScope(ctx, exec)
	j := eng.manager.CreateAsyncJob(exec, exclusive, opts...)
	if err := eng.manager.ScheduleAsyncJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Timer creates and schedules a timer job whose handler receives config
// as JSON when it fires. An empty handlerType means
// job.HandlerTriggerTimer.
func Timer[T any](ctx context.Context, eng *Engine, def timer.Definition, exec job.Execution, handlerType string, config T) (*job.Job, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config for timer %q: %w", handlerType, err)
	}
	return eng.TimerRaw(ctx, def, true, exec, handlerType, data)
}

// TimerRaw creates and schedules a timer job.
func (eng *Engine) TimerRaw(ctx context.Context, def timer.Definition, interrupting bool, exec job.Execution, handlerType string, config []byte) (*job.Job, error) {
	exec = withScope(ctx, exec)
	j, err := eng.manager.CreateTimerJob(def, interrupting, exec, handlerType, config)
	if err != nil {
		return nil, err
	}
	if err := eng.manager.ScheduleTimerJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// withScope fills correlation fields the caller left empty from the
// scope in ctx.
func withScope(ctx context.Context, exec job.Execution) job.Execution {
	s, ok := scope.From(ctx)
	if !ok {
		return exec
	}
	if exec.TenantID == "" {
		exec.TenantID = s.TenantID
	}
	if exec.ProcessInstanceID == "" {
		exec.ProcessInstanceID = s.ProcessInstanceID
	}
	if exec.ID == "" {
		exec.ID = s.ExecutionID
	}
	return exec
}

// Config returns the effective configuration, including the generated
// node name.
func (eng *Engine) Config() asyncexec.Config { return eng.cfg }

// NodeName returns the lock owner written by this node.
func (eng *Engine) NodeName() string { return eng.cfg.NodeName }

// Store returns the job store.
func (eng *Engine) Store() job.Store { return eng.store }

// Manager returns the job manager.
func (eng *Engine) Manager() *manager.Manager { return eng.manager }

// Pool returns the node executor.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Sweeper returns the expired-lock sweeper.
func (eng *Engine) Sweeper() *sweeper.Sweeper { return eng.sweeper }

// DLQ returns the dead-letter service.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// MemQueue returns the in-memory fast path registry.
func (eng *Engine) MemQueue() *memqueue.Registry { return eng.memq }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Handlers returns the handler registry.
func (eng *Engine) Handlers() *job.Registry { return eng.handlers }

// QueueManager returns the queue manager, or nil if no limits were set.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Collector returns a prometheus.Collector for this node.
func (eng *Engine) Collector() *observability.Collector { return eng.collector }
