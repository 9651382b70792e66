package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

func setDialect() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes one goose command (up, down, status) against the pool.
// Goose writes its progress to stdout.
func Run(ctx context.Context, pool *sql.DB, dir, command string, args ...string) error {
	if pool == nil {
		return fmt.Errorf("db handle is required")
	}
	if dir == "" {
		return fmt.Errorf("migrations dir is required")
	}
	if err := setDialect(); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, pool, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion walks the schema up or down until it sits at target.
// A target equal to the current version is a no-op.
func MigrateToVersion(ctx context.Context, pool *sql.DB, dir string, target int64) error {
	if target <= 0 {
		return fmt.Errorf("target version must be positive, got %d", target)
	}
	if err := setDialect(); err != nil {
		return err
	}

	current, err := goose.GetDBVersion(pool)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, pool, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, pool, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
