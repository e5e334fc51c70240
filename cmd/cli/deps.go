package main

import (
	"context"

	"hoopval/adapters/memory"
	"hoopval/adapters/postgres"
	"hoopval/adapters/rng"
	"hoopval/internal"
	"hoopval/internal/config"
	apperrors "hoopval/internal/errors"
	"hoopval/internal/validation"
	"hoopval/ports"
)

func (o *globalOptions) load() (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(), nil
}

func newPipeline(cfg *config.Config, logger *internal.Logger) (*validation.Pipeline, error) {
	return validation.NewPipeline(cfg.Pipeline(), rng.NewSeededAdapter(), logger)
}

// openLedger connects to PostgreSQL and applies pending migrations when a
// database URL is configured; otherwise runs are kept in memory
func openLedger(ctx context.Context, cfg *config.Config, logger *internal.Logger) (ports.LedgerPort, func(), error) {
	if cfg.Database.URL == "" {
		logger.Info("no database configured, keeping runs in memory")
		return memory.NewLedger(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, nil, apperrors.DatabaseError("migrate", err)
	}
	return postgres.NewLedgerRepository(db), func() { db.Close() }, nil
}

// requireDatabase rejects commands that only make sense against a shared store
func requireDatabase(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return apperrors.ConfigInvalid("database.url is required (set HOOPVAL_DATABASE_URL)")
	}
	return nil
}
