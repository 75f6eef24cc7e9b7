package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/asyncexec/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithScanBatch sets how many index entries a query reads per round trip.
// Defaults to 256.
func WithScanBatch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batch = n
		}
	}
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
	batch  int
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), batch: 256}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate stamps the key layout version, or checks it against an existing
// stamp. There is nothing to create ahead of time.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.client.SetNX(ctx, schemaKey, schemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("asyncexec/redis: migrate: %w", err)
	}
	got, err := s.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("asyncexec/redis: migrate: %w", err)
	}
	if got != schemaVersion {
		return fmt.Errorf("asyncexec/redis: key layout version %q, want %q", got, schemaVersion)
	}
	s.logger.Debug("redis key layout ready", slog.String("version", got))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close leaves the client open; it belongs to the caller.
func (s *Store) Close() error { return nil }
