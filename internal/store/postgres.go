// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package store manages the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectRetries is the number of extra ping attempts made by Connect.
const DefaultConnectRetries = 5

// connectBackoffBase is the first delay between ping attempts.
var connectBackoffBase = 250 * time.Millisecond

// pinger is the part of pgxpool.Pool used while waiting for the database.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and waits until the database answers
// a ping, retrying with exponential backoff up to retries extra times.
func Connect(ctx context.Context, databaseURL string, retries uint64) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, retries); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, retries uint64) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(connectBackoffBase))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
