// Package sqlite implements store.Store on SQLite through database/sql and
// github.com/mattn/go-sqlite3. Timestamps are stored as fixed-width UTC
// text. Use it for single-node deployments, development and tests:
//
//	s, err := sqlite.Open("file:asyncexec.db?_busy_timeout=5000")
//	if err != nil { ... }
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite
