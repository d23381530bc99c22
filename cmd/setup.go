package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
//
// A missing config file is created from the embedded template first.
// With --status it only reports migration state; with --rollback it undoes the latest migration.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil && r.config == nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	config, err := r.configure(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db := r.db
	if db == nil {
		if db, err = shared.OpenDatabase(config.Database.Path, config.Database.BusyTimeoutMS); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}

	switch {
	case cmd.Bool("status"):
		return r.writeMigrationStatus(db)
	case cmd.Bool("rollback"):
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		r.writePlain("✓ Rolled back the latest migration\n")
		return nil
	}

	r.logger.Info("running database migrations")
	applied, err := shared.Migrate(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ Database ready at %s (%d migration(s) applied)\n", config.Database.Path, applied)
	return nil
}

func (r *Runner) writeMigrationStatus(db *sql.DB) error {
	states, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	r.writePlainHeader("Migrations")
	for _, s := range states {
		if s.AppliedAt == nil {
			r.writePlain("  %03d  %-32s pending\n", s.Version, s.Name)
			continue
		}
		r.writePlain("  %03d  %-32s applied %s\n", s.Version, s.Name, s.AppliedAt.Local().Format(time.DateTime))
	}
	return nil
}
