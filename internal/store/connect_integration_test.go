// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/accountd/accountd/internal/store"
)

var _ = Describe("Connect", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("accountd_test"),
			postgres.WithUsername("accountd"),
			postgres.WithPassword("accountd"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = container.Terminate(ctx)
	})

	It("returns a live pool", func() {
		pool, err := store.Connect(ctx, connStr, store.DefaultConnectRetries)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		Expect(pool.Ping(ctx)).To(Succeed())
	})

	It("serves the users table once migrated", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer migrator.Close()
		Expect(migrator.Up()).To(Succeed())

		var pool *pgxpool.Pool
		pool, err = store.Connect(ctx, connStr, 0)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var count int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("fails once retries are exhausted", func() {
		Expect(container.Stop(ctx, nil)).To(Succeed())

		_, err := store.Connect(ctx, connStr, 1)
		Expect(err).To(HaveOccurred())
	})
})
