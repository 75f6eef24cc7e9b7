package store

import (
	"context"
	"fmt"

	"github.com/xraph/asyncexec/job"
)

// Store is a job.Store with a connection lifecycle.
type Store interface {
	job.Store

	// Migrate brings the schema up to date. It is idempotent.
	Migrate(ctx context.Context) error

	Ping(ctx context.Context) error

	// Close releases connections the backend opened itself. Handles passed
	// in by the caller stay open.
	Close() error
}

// Prepare pings s and, when migrate is set, runs its migrations.
func Prepare(ctx context.Context, s Store, migrate bool) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !migrate {
		return nil
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
