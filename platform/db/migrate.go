package db

import (
	"context"
	"errors"
	"fmt"

	"salesops_backend/platform/config"

	"github.com/pressly/goose/v3"

	// Registers the pgx stdlib driver used by goose.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNoMigrationsDir is returned when the migrations directory is not configured.
var ErrNoMigrationsDir = errors.New("migrations directory not configured")

// RunMigrations applies all pending SQL migrations from the configured
// directory. It is safe to call on every startup; goose tracks applied
// versions in the goose_db_version table.
func RunMigrations(ctx context.Context, cfg config.MigrationConfig) error {
	dir := cfg.GetMigrationsDir()
	if dir == "" {
		return ErrNoMigrationsDir
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	goose.SetTableName("goose_db_version")
	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
