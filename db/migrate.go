package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationDirs are probed in order; the first existing directory wins.
var migrationDirs = []string{"db/migrations", "migrations", "../db/migrations"}

func migrationsPath() (string, error) {
	dirs := migrationDirs
	if p := os.Getenv("MIGRATIONS_DIR"); p != "" {
		dirs = append([]string{p}, dirs...)
	}
	for _, path := range dirs {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("absolute path for %s: %w", path, err)
			}
			return "file://" + abs, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found in %v", dirs)
}

func newMigrator(db *sql.DB, source string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies the versioned migrations found in db/migrations.
// Running it on an up-to-date schema is a no-op.
func RunMigrations(db *sql.DB) error {
	source, err := migrationsPath()
	if err != nil {
		return err
	}
	return RunMigrationsFromPath(db, source)
}

// RunMigrationsFromPath applies migrations from a file:// source URL.
func RunMigrationsFromPath(db *sql.DB, source string) error {
	m, err := newMigrator(db, source)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d; manual intervention required", version)
	}
	slog.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.String("component", "db_migrate"))
	return nil
}

// Prepare brings the schema up to date: versioned migrations first, the
// embedded statements when the versioned path is unavailable.
func Prepare(ctx context.Context, db *sql.DB) error {
	if err := RunMigrations(db); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := Migrate(ctx, db); err != nil {
			return fmt.Errorf("embedded migration: %w", err)
		}
	}
	return nil
}
