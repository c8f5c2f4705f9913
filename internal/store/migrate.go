// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"cmp"
	"embed"
	"errors"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const upSuffix = ".up.sql"

// Migration is one embedded schema change.
type Migration struct {
	Version uint
	// Name is the file stem, e.g. 000001_create_users.
	Name string
}

// SchemaStatus describes a database relative to the embedded migrations.
type SchemaStatus struct {
	// Version is 0 on a database that was never migrated.
	Version uint
	Dirty   bool
	Applied []Migration
	Pending []Migration
}

var embedded = sync.OnceValues(func() ([]Migration, error) {
	return parseMigrations(migrationsFS, "migrations")
})

// Migrations returns the embedded migrations in ascending version order.
func Migrations() ([]Migration, error) {
	all, err := embedded()
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

// Lookup returns the embedded migration with the given version.
func Lookup(version uint) (Migration, bool) {
	all, err := embedded()
	if err != nil {
		return Migration{}, false
	}
	i, found := slices.BinarySearchFunc(all, version, func(m Migration, v uint) int {
		return cmp.Compare(m.Version, v)
	})
	if !found {
		return Migration{}, false
	}
	return all[i], true
}

// parseMigrations reads the up files of dir. Every up file must be named
// NNNNNN_name.up.sql with a positive, unique version.
func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("dir", dir).Wrap(err)
	}

	var migrations []Migration
	seen := make(map[uint]string)
	for _, entry := range entries {
		stem, ok := strings.CutSuffix(entry.Name(), upSuffix)
		if !ok {
			continue
		}
		prefix, _, _ := strings.Cut(stem, "_")
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil || version == 0 {
			return nil, oops.Code("MIGRATION_NAME_INVALID").
				With("file", entry.Name()).
				Errorf("migration files must be named NNNNNN_name%s", upSuffix)
		}
		if other, dup := seen[uint(version)]; dup {
			return nil, oops.Code("MIGRATION_NAME_INVALID").
				With("file", entry.Name()).
				With("conflicts_with", other).
				Errorf("duplicate migration version %d", version)
		}
		seen[uint(version)] = stem
		migrations = append(migrations, Migration{Version: uint(version), Name: stem})
	}

	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

// migrateIface is the subset of *migrate.Migrate used by Migrator.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded users schema with golang-migrate.
type Migrator struct {
	m migrateIface
}

// NewMigrator creates a Migrator for databaseURL.
// postgres:// and postgresql:// URLs are rewritten to the pgx5:// scheme.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}

	return &Migrator{m: m}, nil
}

func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(databaseURL, scheme); found {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	return ignoreNoChange(m.m.Up(), "MIGRATION_UP_FAILED")
}

// Down rolls back every migration, dropping the users table.
func (m *Migrator) Down() error {
	return ignoreNoChange(m.m.Down(), "MIGRATION_DOWN_FAILED")
}

// Steps applies n pending migrations when n is positive and rolls back -n
// applied migrations when n is negative. Zero does nothing.
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

func ignoreNoChange(err error, code string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Version returns the current schema version and dirty flag.
// A fresh database reports version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Status compares the database version with the embedded migrations.
// A version forced beyond the embedded set counts every migration as applied.
func (m *Migrator) Status() (SchemaStatus, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return SchemaStatus{}, err
	}
	all, err := embedded()
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Version: version, Dirty: dirty}
	for _, mig := range all {
		if mig.Version <= version {
			status.Applied = append(status.Applied, mig)
		} else {
			status.Pending = append(status.Pending, mig)
		}
	}
	return status, nil
}

// Force records version as applied without running anything, clearing the
// dirty flag after a failed migration was repaired by hand.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").With("version", version).Errorf("version must not be negative")
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the migration source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	var component string
	switch {
	case srcErr != nil && dbErr != nil:
		component = "both"
	case srcErr != nil:
		component = "source"
	case dbErr != nil:
		component = "database"
	default:
		return nil
	}
	return oops.Code("MIGRATION_CLOSE_FAILED").With("component", component).Wrap(errors.Join(srcErr, dbErr))
}
