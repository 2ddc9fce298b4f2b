package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/storage/postgres"
	"ledger/internal/storage/sqlite"
)

// migrator runs schema migrations for one SQL backend.
type migrator struct {
	up      func() error
	down    func() error
	version func() (uint, bool, error)
}

func migratorFor(cfg *config.Config) (migrator, error) {
	switch cfg.DataBackend {
	case "sqlite":
		path := cfg.SQLiteDBPath
		return migrator{
			up:      func() error { return sqlite.RunMigrations(path) },
			down:    func() error { return sqlite.RollbackMigrations(path) },
			version: func() (uint, bool, error) { return sqlite.MigrationVersion(path) },
		}, nil
	case "postgres":
		url := cfg.DatabaseURL
		return migrator{
			up:      func() error { return postgres.RunMigrations(url) },
			down:    func() error { return postgres.RollbackMigrations(url) },
			version: func() (uint, bool, error) { return postgres.MigrationVersion(url) },
		}, nil
	default:
		return migrator{}, fmt.Errorf("backend %q has no schema to migrate", cfg.DataBackend)
	}
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema of the configured backend",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMigrator()
			if err != nil {
				return err
			}
			if err := m.up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert every applied migration, dropping all data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to drop the schema without --yes")
			}
			m, err := loadMigrator()
			if err != nil {
				return err
			}
			if err := m.down(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping every table")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMigrator()
			if err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	})

	return cmd
}

func loadMigrator() (migrator, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return migrator{}, err
	}
	cli.SetupLogger(cfg)
	return migratorFor(cfg)
}

func printVersion(cmd *cobra.Command, m migrator) error {
	version, dirty, err := m.version()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", version, suffix)
	return err
}
