package migrate

import (
	"context"
	"fmt"

	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot. It only fires in dev
// environments with the auto-migrate flag on; deployed schemas move through
// the migrate binary.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	pool, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql handle: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "auto-applying pending migrations")
	if err := Run(ctx, pool, DefaultDir, "up"); err != nil {
		return fmt.Errorf("auto-migrate up: %w", err)
	}
	logg.Info(ctx, "schema is current")
	return nil
}
