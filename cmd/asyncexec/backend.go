package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/asyncexec/store"
	bunstore "github.com/xraph/asyncexec/store/bun"
	"github.com/xraph/asyncexec/store/memory"
	mongostore "github.com/xraph/asyncexec/store/mongo"
	"github.com/xraph/asyncexec/store/postgres"
	redisstore "github.com/xraph/asyncexec/store/redis"
	"github.com/xraph/asyncexec/store/sqlite"
)

// openStore connects the configured backend. The returned close function
// releases the store and any client openStore created for it.
func openStore(ctx context.Context, g *globalFlags, logger *slog.Logger) (store.Store, func(), error) {
	var (
		s       store.Store
		cleanup = func() {}
	)

	switch g.backend {
	case "memory":
		s = memory.New()

	case "postgres":
		pg, err := postgres.New(ctx, g.dsn, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		s = pg

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(g.dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s = bunstore.New(db, bunstore.WithLogger(logger))
		cleanup = func() { _ = db.Close() }

	case "sqlite":
		lite, err := sqlite.Open(g.dsn, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		s = lite

	case "redis":
		opt, err := goredis.ParseURL(g.dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		s = redisstore.New(client, redisstore.WithLogger(logger))
		cleanup = func() { _ = client.Close() }

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(g.dsn))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		s = mongostore.New(client.Database(g.database), mongostore.WithLogger(logger))
		cleanup = func() { _ = client.Disconnect(context.Background()) }

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", g.backend)
	}

	closeAll := func() {
		if err := s.Close(); err != nil {
			logger.Warn("close store", slog.String("error", err.Error()))
		}
		cleanup()
	}

	if err := store.Prepare(ctx, s, g.migrate); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("%s: %w", g.backend, err)
	}
	return s, closeAll, nil
}
