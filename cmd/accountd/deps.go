// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/httpapi"
	"github.com/accountd/accountd/internal/notify"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, retries uint64) (Pool, error)

	// MigratorFactory creates the migrator used for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// SenderFactory creates the notification sender for the mail driver.
	// Default: newSender
	SenderFactory func(cfg config.MailConfig, logger *slog.Logger) (notify.Sender, error)

	// APIServerFactory creates the account API server.
	// Default: httpapi.NewServer
	APIServerFactory func(accounts httpapi.Accounts, opts httpapi.Options) (APIServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

// Pool wraps the pgxpool.Pool methods used by serve.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator wraps the migrator methods used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator wraps the store.Migrator methods used by the migrate commands.
type Migrator interface {
	AutoMigrator
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.SchemaStatus, error)
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Running() bool
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
