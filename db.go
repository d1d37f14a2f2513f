package main

import (
	"context"
	"fmt"

	"gitea.kood.tech/petrkubec/match-me/engine/config"
	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/postgres"
)

// openStore connects to Postgres and applies the schema when enabled. The
// returned close func releases the pool.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Store, func() error, error) {
	db, err := postgres.Open(ctx, cfg.URL, postgres.Options{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}
	logging.Info().Msg("database connection established")

	store := postgres.New(db)
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logging.Info().Msg("database schema up to date")
	}
	return store, db.Close, nil
}
