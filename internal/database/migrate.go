// Package database manages the gateway-owned tables: the query audit log and
// the translator example corpus. The fact table belongs to the ingestion
// subsystem and is never migrated here.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
)

//go:embed migrations/*.sql
var embedded embed.FS

// MigrationConfig holds migration configuration. An empty MigrationsPath
// uses the migrations compiled into the binary.
type MigrationConfig struct {
	DatabaseURL    string
	MigrationsPath string
}

// RunMigrations applies every pending up migration
func RunMigrations(config MigrationConfig) error {
	return withMigrate(config, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return eris.Wrap(err, "database: run migrations")
		}
		return nil
	})
}

// RollbackMigrations reverts the given number of migrations
func RollbackMigrations(config MigrationConfig, steps int) error {
	if steps <= 0 {
		return eris.New("database: rollback steps must be positive")
	}
	return withMigrate(config, func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return eris.Wrapf(err, "database: roll back %d migration(s)", steps)
		}
		return nil
	})
}

// MigrationVersion reports the applied version and whether the last run left it dirty
func MigrationVersion(config MigrationConfig) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrate(config, func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func withMigrate(config MigrationConfig, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return eris.Wrap(err, "database: open")
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return eris.Wrap(err, "database: create migration driver")
	}

	var m *migrate.Migrate
	if config.MigrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", config.MigrationsPath), "postgres", driver)
	} else {
		source, serr := iofs.New(embedded, "migrations")
		if serr != nil {
			return eris.Wrap(serr, "database: open embedded migrations")
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	}
	if err != nil {
		return eris.Wrap(err, "database: create migrate instance")
	}
	defer m.Close()

	return fn(m)
}

// HealthCheck verifies connectivity, the pgvector extension and the audit table
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "database: ping")
	}

	var hasVector bool
	if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&hasVector); err != nil {
		return eris.Wrap(err, "database: check vector extension")
	}
	if !hasVector {
		return eris.New("database: pgvector extension is not installed")
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_audit").Scan(&count); err != nil {
		return eris.Wrap(err, "database: query audit table")
	}
	return nil
}
