// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/pkg/errutil"
)

// newMigrateCmd creates the migrate subcommand and its children.
func (c *cli) newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, or inspect the embedded PostgreSQL migrations.`,
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error {
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Database is up to date")
					return nil
				}
				for _, p := range pending {
					cmd.Printf("Applying %s\n", p.Name)
				}
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the given number of migrations, or every migration with --steps 0.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error {
				var err error
				if steps == 0 {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").With("steps", steps).Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 = all)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				cmd.Println(formatVersion(v, dirty, len(pending)))
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use after
repairing a migration that failed part way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return c.withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", v).Wrap(err)
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, versionCmd, force)
	return cmd
}

// withMigrator opens a migrator for the configured database and closes it
// after fn.
func (c *cli) withMigrator(cmd *cobra.Command, fn func(m Migrator) error) error {
	cfg, logger, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	m, err := c.deps.NewMigrator(cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "migrator close failed", closeErr)
		}
	}()
	logger.Debug("migrator ready", slog.String("database", cfg.Redacted().Database.URL))
	return fn(m)
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return v, nil
}

func formatVersion(v uint, dirty bool, pending int) string {
	if v == 0 && !dirty {
		return fmt.Sprintf("version: none (pending: %d)", pending)
	}
	out := fmt.Sprintf("version: %d (pending: %d)", v, pending)
	if dirty {
		out += " DIRTY"
	}
	return out
}
