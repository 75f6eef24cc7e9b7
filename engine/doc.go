// Package engine wires the asyncexec subsystems together and provides
// the application-level API for registering handlers and creating jobs.
//
// The engine package exists to break an import cycle: the root asyncexec
// package defines Config, Entity and the sentinel errors imported by every
// subsystem, and so cannot import those packages back. Engine sits above
// all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	s, err := postgres.New(ctx, dsn)
//
//	eng, err := engine.New(s,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	    engine.WithQueueLimits(queue.Limit{HandlerType: "send-email", MaxConcurrency: 4}),
//	)
//
// # Registering Handlers
//
//	engine.Register(eng, job.NewDefinition("send-email",
//	    func(ctx context.Context, j *job.Job, in EmailInput) error { ... }))
//
// # Creating Jobs
//
//	exec := job.Execution{ProcessInstanceID: "pi-1", ID: "ex-1"}
//
//	// Run as soon as possible
//	engine.Async(ctx, eng, exec, "send-email", EmailInput{To: "user@example.com"})
//
//	// Fire after a timer
//	engine.Timer(ctx, eng, timer.Duration("PT5M"), exec, "send-email", input)
//
// # Lifecycle
//
// [Engine.Start] starts the expired-lock sweeper and, when
// Config.AutoActivate is set, the node executor. [Engine.Stop] stops
// acquisition, waits for running handlers and releases claimed jobs that
// never started.
//
// # Options
//
//   - [WithConfig] sets pool sizes, lock times and acquisition waits
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the execution chain
//   - [WithBackoff] sets the retry delay strategy
//   - [WithQueueLimits] and [WithTenantLimits] bound concurrency and rate
//   - [WithHandlerTimeouts] bounds handler execution time
//   - [WithTracerProvider] and [WithMeterProvider] set OpenTelemetry providers
package engine
