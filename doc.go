// Package asyncexec provides the background job and timer scheduling core
// of a process execution engine. It decouples asynchronous continuations
// (timers firing, retries, deferred continuations) from the engine goroutine
// that created them through a persisted job table that every engine node
// polls and claims under optimistic concurrency control.
//
// # Quick Start
//
//	eng, err := engine.New(pgStore,
//	    engine.WithConfig(asyncexec.DefaultConfig()),
//	)
//	engine.Register(eng, job.NewDefinition("async-continuation", continueExecution))
//	_ = eng.Start(ctx)
//
// # Architecture
//
// A job is a single record tagged with one of four states: timer,
// executable, suspended or dead letter. The manager package is the only
// component allowed to change that tag. Each node runs a worker pool with
// one acquisition loop per job category, a bounded hand-off queue and a
// fixed set of workers, plus an independent sweeper that clears locks whose
// lease expired because the holding node crashed.
//
// Nodes never talk to each other. Every mutation of a job record goes
// through a version-guarded update; a losing writer receives a
// [job.Conflict] outcome instead of an error and simply moves on.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package asyncexec
