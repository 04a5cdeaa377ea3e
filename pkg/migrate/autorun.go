package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

// AutoRunEnabled reports whether a binary should migrate on boot. Only dev
// environments with RENTLOOP_AUTO_MIGRATE set qualify.
func AutoRunEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev migrates the schema when AutoRunEnabled. sqlite files are built
// from the gorm models since the goose files use Postgres DDL.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !AutoRunEnabled(cfg) {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"driver": cfg.DB.Driver, "dir": DefaultDir})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "migrate.autorun.sqlite")
		return syncModels(ctx, client)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	before, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if err := Run(ctx, sqlDB, DefaultDir, CommandUp); err != nil {
		return err
	}
	after, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"from_version": before, "to_version": after}), "migrate.autorun.complete")
	return nil
}

func syncModels(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("sqlite auto-migrate: %w", err)
	}
	return nil
}
