package bunstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/asyncexec/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the aggregate store interface at compile time.
var _ store.Store = (*Store)(nil)

// Store implements store.Store with bun on the PostgreSQL dialect. Records
// map through jobModel; version guards are WHERE clauses on the model's
// update and delete queries. The caller owns the *bun.DB.
type Store struct {
	db     *bun.DB
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

// New wraps db without taking ownership of it.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// migrationModel is one row of the migration ledger shared with the pgx
// backend, so either store can take over a schema the other created.
type migrationModel struct {
	bun.BaseModel `bun:"table:asyncexec_migrations"`

	Filename  string    `bun:"filename,pk"`
	AppliedAt time.Time `bun:"applied_at,notnull,default:current_timestamp"`
}

// Migrate applies the embedded SQL files that are not yet in the ledger,
// each in a transaction with its ledger row.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*migrationModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("asyncexec/bun: create migrations table: %w", err)
	}

	var done []string
	err = s.db.NewSelect().
		Model((*migrationModel)(nil)).
		Column("filename").
		Scan(ctx, &done)
	if err != nil {
		return fmt.Errorf("asyncexec/bun: load applied migrations: %w", err)
	}

	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("asyncexec/bun: read migrations: %w", err)
	}
	slices.Sort(entries)

	for _, path := range entries {
		name := strings.TrimPrefix(path, "migrations/")
		if slices.Contains(done, name) {
			continue
		}

		data, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return fmt.Errorf("asyncexec/bun: read migration %s: %w", name, err)
		}

		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.NewInsert().
				Model(&migrationModel{Filename: name, AppliedAt: time.Now().UTC()}).
				On("CONFLICT (filename) DO NOTHING").
				Exec(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("asyncexec/bun: migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", slog.String("file", name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
