package main

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/scenario_manager/internal/repo"
	"github.com/Skotchmaster/scenario_manager/pkg/config"
	pkgdb "github.com/Skotchmaster/scenario_manager/pkg/db"
	"github.com/Skotchmaster/scenario_manager/pkg/mongodb"
)

func openStore(ctx context.Context, cfg config.Config) (repo.UserRepo, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		r := &repo.GormRepo{DB: db, Timeout: cfg.StoreTimeout}
		if err := r.Migrate(ctx); err != nil {
			_ = pkgdb.Close(db)
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return r, func() { _ = pkgdb.Close(db) }, nil

	case config.DriverMongo:
		client, err := mongodb.Open(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		r := repo.NewMongoRepo(client.Database(cfg.MongoDatabase), cfg.StoreTimeout)
		if err := r.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return r, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
