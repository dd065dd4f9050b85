// cmd/server/migrate.go
package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/database"
	"eload-service/internal/utils"
)

// runMigration applies one migration action to the configured database
func runMigration(configPath, action string, version int) error {
	if err := checkMigrationAction(action, version); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Database.Enabled {
		return errors.New("database is disabled in the configuration")
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	db, err := database.NewConnection(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger, &cfg.Database)
	switch action {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "force":
		return migrator.Force(version)
	}

	current, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("Migration version", zap.Uint("version", current), zap.Bool("dirty", dirty))
	fmt.Printf("version %d (dirty: %t)\n", current, dirty)
	return nil
}

func checkMigrationAction(action string, version int) error {
	switch action {
	case "up", "down", "version":
		return nil
	case "force":
		if version < 0 {
			return errors.New("--migrate force needs --force-version")
		}
		return nil
	default:
		return fmt.Errorf("unknown migration action %q: use up, down, version or force", action)
	}
}
