package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/asyncexec/store"
)

// Collection name constants.
const (
	colJobs       = "asyncexec_jobs"
	colScopeLocks = "asyncexec_scope_locks"
)

// Ensure Store implements the aggregate store interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store using the official
// driver. The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

func (s *Store) jobs() *mongod.Collection { return s.db.Collection(colJobs) }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("asyncexec/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colJobs: {
			// Acquisition: state + due date.
			{Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "due_date", Value: 1},
				{Key: "created_at", Value: 1},
			}},
			// Expired lock sweep.
			{Keys: bson.D{{Key: "lock_expiration", Value: 1}}},
			{Keys: bson.D{{Key: "process_instance_id", Value: 1}}},
			{Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "state", Value: 1},
			}},
		},
		colScopeLocks: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
}
