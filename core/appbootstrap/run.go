package appbootstrap

import (
	"context"
	"fmt"

	"formintake/api"
	"formintake/config"
	"formintake/core/store"
	"formintake/core/utils"
)

// Run loads configuration, prepares the database and serves until ctx ends.
func Run(ctx context.Context, configPath string, logger *utils.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	logger.Printf("formintake starting env=%s driver=%s summary=%t", cfg.AppEnv, cfg.DBDriver, rt.summary != nil)
	return api.NewServer(cfg, rt.serverDeps, logger).Run(ctx)
}
