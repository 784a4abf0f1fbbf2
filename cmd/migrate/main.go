// Command migrate applies the embedded SQL schema to DATABASE_URL.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	appmigrations "github.com/wolfman30/clinic-booking/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the clinic booking database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")

	withMigrator := func(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := newMigrator(databaseURL)
			if err != nil {
				return err
			}
			defer closeFn()
			return fn(m, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate, _ []string) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Println("migrations complete")
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := parsePositive(args[0])
				if err != nil {
					return err
				}
				steps = n
			}
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Printf("rolled back %d migration(s)\n", steps)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			fmt.Printf("forced version to %d\n", version)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate, _ []string) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("no migrations applied")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			fmt.Printf("version %d (dirty=%t)\n", version, dirty)
			return nil
		}),
	})

	return root
}

func newMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", raw)
	}
	return n, nil
}
