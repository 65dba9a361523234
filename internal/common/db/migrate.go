package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

// Migrate runs a goose command ("up", "down", "status", "version") against sqlDB.
func Migrate(ctx context.Context, sqlDB *sql.DB, command string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("set migration dialect failed: %w", err)
	}
	switch command {
	case "up":
		return goose.UpContext(ctx, sqlDB, migrationDir)
	case "down":
		return goose.DownContext(ctx, sqlDB, migrationDir)
	case "status":
		return goose.StatusContext(ctx, sqlDB, migrationDir)
	case "version":
		return goose.VersionContext(ctx, sqlDB, migrationDir)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}
