package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ping15/ShortPlayGenerator/internal/config"
	"github.com/ping15/ShortPlayGenerator/internal/platform/postgres"
)

// runMigrations applies a goose command to the postgres queue database.
func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for migrations")
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Error closing database connection", "error", err)
		}
	}()

	return postgres.Migrate(ctx, db, command, logger)
}
