// Package store names the persistence contract the engine runs on.
//
// Record operations live in [job.Store]: inserts, version-guarded updates
// and deletes returning [job.Outcome], the acquisition and expired-lock
// queries, and the process-instance scope lease. [Store] adds Migrate,
// Ping and Close.
//
// Backends:
//
//   - store/memory: maps behind a mutex, used by tests
//   - store/postgres: pgx/v5 with embedded SQL migrations
//   - store/bun: Bun ORM over the same PostgreSQL schema
//   - store/sqlite: mattn/go-sqlite3, single file
//   - store/redis: one MessagePack key per job plus sorted-set indexes
//   - store/mongo: one document per job
//
// storetest holds the conformance suite every backend runs.
//
//	s, err := postgres.New(ctx, dsn)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	if err := store.Prepare(ctx, s, true); err != nil {
//	    return err
//	}
//	eng, err := engine.New(s)
package store
