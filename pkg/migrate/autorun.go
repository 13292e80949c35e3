package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/db"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

// MaybeRunDev applies pending billing migrations at startup when running in
// dev with TABLEREWARDS_AUTO_MIGRATE enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	before, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	after, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"from_version": before, "to_version": after}), "billing schema migrated")
	return nil
}
