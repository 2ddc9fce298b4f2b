package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending migration to databaseURL.
func RunMigrations(databaseURL string) error {
	return withMigrate(databaseURL, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// RollbackMigrations reverts every applied migration.
func RollbackMigrations(databaseURL string) error {
	return withMigrate(databaseURL, func(m *migrate.Migrate) error {
		return m.Down()
	})
}

// MigrationVersion reports the applied schema version.
func MigrationVersion(databaseURL string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrate(databaseURL, func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		return err
	})
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrateURL rewrites a libpq style URL to the scheme the pgx/v5
// migrate driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func withMigrate(databaseURL string, run func(*migrate.Migrate) error) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
