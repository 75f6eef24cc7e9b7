//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/store/postgres"
	"github.com/xraph/asyncexec/store/storetest"
)

// setupContainer starts one Postgres container for the package and returns
// its connection string.
func setupContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("asyncexec_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

// newStore connects a migrated store and empties its tables.
func newStore(t *testing.T, connStr string) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"asyncexec_jobs", "asyncexec_scope_locks"} {
		if _, err := s.Pool().Exec(ctx, fmt.Sprintf("TRUNCATE %s", table)); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return s
}

func TestStore(t *testing.T) {
	connStr := setupContainer(t)

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t, connStr).Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})

	t.Run("MigrateIdempotent", func(t *testing.T) {
		s := newStore(t, connStr)
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("second Migrate: %v", err)
		}
	})

	storetest.Run(t, func(t *testing.T) job.Store { return newStore(t, connStr) })
}
