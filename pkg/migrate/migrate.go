package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/paygrid/paygrid-backend/pkg/config"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

// DefaultDir is where goose SQL migrations live.
const DefaultDir = "pkg/migrate/migrations"

// Run applies the given goose command ("up", "down", "status") against sqlDB.
func Run(ctx context.Context, sqlDB *sql.DB, dir string, command string) error {
	if dir == "" {
		dir = DefaultDir
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	switch command {
	case "up":
		return goose.UpContext(ctx, sqlDB, dir)
	case "down":
		return goose.DownContext(ctx, sqlDB, dir)
	case "status":
		return goose.StatusContext(ctx, sqlDB, dir)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// MaybeRunDev executes migrations automatically when running in dev mode with
// the auto-migrate flag enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "running goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
