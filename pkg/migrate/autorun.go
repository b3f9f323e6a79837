package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// SETTLEMENT_AUTO_MIGRATE set. Elsewhere it only warns when the schema lags
// the binary, leaving the apply step to cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": EmbeddedDir})

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		status, err := EmbeddedStatus(ctx, sqlDB)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "schema version check skipped")
			return nil
		}
		if status.Behind() {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"applied_version": status.Applied,
				"latest_version":  status.Latest,
			}), "database schema is behind this build")
		}
		return nil
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
