package main

// Apply the postgres record store schema:
//   STORE_BACKEND=postgres DATABASE_URL=... go run ./cmd/migrate

import (
	"context"
	"os"

	"resumes-api/internal/shared/config"
	"resumes-api/internal/shared/storage/db"
	"resumes-api/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.Error("config.invalid", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.StoreBackend != config.StorePostgres {
		telemetry.Info("migrate.skipped", map[string]any{"store_backend": cfg.StoreBackend})
		return
	}
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolConfigFor(db.ProfileMigrate))
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)
}
