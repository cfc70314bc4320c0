package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/mbaylor/formrules/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (or DATABASE_URL env)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		fatal("database URL is required: use -database or DATABASE_URL", nil)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		fatal("failed to create migration instance", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		fatal(fmt.Sprintf("migration %s failed", command), err)
	}
}

func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Logger.Info("migrations completed")
		return nil

	case "down":
		err := m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Logger.Info("rollback completed")
		return nil

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Logger.Info("migration version", "version", version, "dirty", dirty)
		return nil

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Logger.Info("forced migration version", "version", version)
		return nil

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}
}

func fatal(message string, err error) {
	if err != nil {
		logger.Logger.Error(message, "error", err)
	} else {
		logger.Logger.Error(message)
	}
	os.Exit(1)
}
