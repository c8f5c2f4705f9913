// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect the PostgreSQL schema migrations.
Without a subcommand, all pending migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	up.Flags().Int("steps", 0, "apply at most this many migrations (0 applies all)")
	cmd.AddCommand(up)

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (rolling back 000001 drops the users table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateDown(cmd, deps)
		},
	}
	down.Flags().Bool("yes", false, "confirm dropping account data")
	down.Flags().Int("steps", 0, "roll back at most this many migrations (0 rolls back all)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatus(cmd, deps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the schema version without running migrations. Use this to clear
a dirty state after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateForce(cmd, deps, args[0])
		},
	})

	return cmd
}

func openMigrator(cmd *cobra.Command, deps *MigrateDeps) (Migrator, error) {
	db, err := config.LoadDatabase(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	migrator, err := deps.MigratorFactory(db.URL)
	if err != nil {
		return nil, oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return migrator, nil
}

func closeMigrator(cmd *cobra.Command, migrator Migrator) {
	if err := migrator.Close(); err != nil {
		cmd.PrintErrf("warning: closing migrator: %v\n", err)
	}
}

// stepsFlag reads --steps. Commands without the flag apply everything.
func stepsFlag(cmd *cobra.Command) (int, error) {
	if cmd.Flags().Lookup("steps") == nil {
		return 0, nil
	}
	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return 0, oops.Wrap(err)
	}
	if steps < 0 {
		return 0, oops.Code("INVALID_STEPS").With("steps", steps).Errorf("steps must not be negative")
	}
	return steps, nil
}

func runMigrateUp(cmd *cobra.Command, deps *MigrateDeps) error {
	steps, err := stepsFlag(cmd)
	if err != nil {
		return err
	}

	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	status, err := migrator.Status()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema status").Wrap(err)
	}
	if len(status.Pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	apply := status.Pending
	if steps > 0 {
		apply = apply[:min(steps, len(apply))]
	}

	cmd.Printf("Applying %d migration(s)...\n", len(apply))
	if steps == 0 {
		err = migrator.Up()
	} else {
		err = migrator.Steps(len(apply))
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	for _, mig := range apply {
		cmd.Printf("  applied %s\n", mig.Name)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, deps *MigrateDeps) error {
	confirmed, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return oops.Wrap(err)
	}
	if !confirmed {
		return oops.Code("MIGRATION_CONFIRM_REQUIRED").Errorf("rolling back drops account data, pass --yes to confirm")
	}
	steps, err := stepsFlag(cmd)
	if err != nil {
		return err
	}

	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	status, err := migrator.Status()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema status").Wrap(err)
	}
	if len(status.Applied) == 0 {
		cmd.Println("No applied migrations")
		return nil
	}

	revert := slices.Clone(status.Applied)
	slices.Reverse(revert)
	if steps > 0 {
		revert = revert[:min(steps, len(revert))]
	}

	cmd.Printf("Rolling back %d migration(s)...\n", len(revert))
	if steps == 0 {
		err = migrator.Down()
	} else {
		err = migrator.Steps(-len(revert))
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	for _, mig := range revert {
		cmd.Printf("  rolled back %s\n", mig.Name)
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, deps *MigrateDeps) error {
	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	status, err := migrator.Status()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema status").Wrap(err)
	}

	if status.Version == 0 {
		cmd.Println("Current version: none")
	} else {
		cmd.Printf("Current version: %s\n", migrationLabel(status.Version))
	}
	cmd.Printf("Dirty: %t\n", status.Dirty)
	cmd.Printf("Applied: %s\n", migrationList(status.Applied))
	cmd.Printf("Pending: %s\n", migrationList(status.Pending))
	return nil
}

func runMigrateForce(cmd *cobra.Command, deps *MigrateDeps, arg string) error {
	version, err := strconv.Atoi(arg)
	if err != nil {
		return oops.Code("INVALID_VERSION").With("version", arg).Errorf("version must be an integer")
	}

	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, migrator)

	if err := migrator.Force(version); err != nil {
		return oops.With("operation", "force schema version").Wrap(err)
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}

// migrationLabel names a version, falling back to the bare number for
// versions not embedded in this binary.
func migrationLabel(version uint) string {
	if mig, ok := store.Lookup(version); ok {
		return mig.Name
	}
	return strconv.FormatUint(uint64(version), 10)
}

func migrationList(migrations []store.Migration) string {
	if len(migrations) == 0 {
		return "none"
	}
	names := make([]string, len(migrations))
	for i, mig := range migrations {
		names[i] = mig.Name
	}
	return strings.Join(names, ", ")
}
