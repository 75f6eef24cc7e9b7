//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/store/redis"
	"github.com/xraph/asyncexec/store/storetest"
)

// setupClient starts a Redis container and returns a connected client.
func setupClient(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStore(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	newStore := func(t *testing.T) *redis.Store {
		t.Helper()
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("FlushDB: %v", err)
		}
		return redis.New(client, redis.WithScanBatch(2))
	}

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})

	t.Run("Migrate", func(t *testing.T) {
		s := newStore(t)
		for range 2 {
			if err := s.Migrate(ctx); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
		}
		if err := client.Set(ctx, "asyncexec:schema", "0", 0).Err(); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Migrate(ctx); err == nil {
			t.Fatal("expected version mismatch error")
		}
	})

	storetest.Run(t, func(t *testing.T) job.Store { return newStore(t) })
}
