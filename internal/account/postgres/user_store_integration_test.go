// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/internal/account/postgres"
	"github.com/accountd/accountd/internal/store"
)

var (
	pool      *pgxpool.Pool
	container *tcpostgres.PostgresContainer
)

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var err error
	container, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("accountd_test"),
		tcpostgres.WithUsername("accountd"),
		tcpostgres.WithPassword("accountd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(ctx, connStr, store.DefaultConnectRetries)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
})

var _ = Describe("UserStore", func() {
	var (
		ctx   context.Context
		users *postgres.UserStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		_, err := pool.Exec(ctx, `TRUNCATE users`)
		Expect(err).NotTo(HaveOccurred())
		users = postgres.NewUserStore(pool)
	})

	newUser := func(email string) *account.User {
		return &account.User{Name: "Ada", Email: email, PasswordHash: "$2a$10$digest"}
	}

	Describe("Create", func() {
		It("round-trips a user", func() {
			user := newUser("ada@example.com")
			Expect(users.Create(ctx, user)).To(Succeed())
			Expect(user.ID).NotTo(Equal(ulid.ULID{}))

			got, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("ada@example.com"))
			Expect(got.ValidatedAccount).To(BeFalse())
			Expect(got.HasPendingReset()).To(BeFalse())
			Expect(got.CreatedAt).To(BeTemporally("~", user.CreatedAt, time.Millisecond))
		})

		It("rejects a duplicate email", func() {
			Expect(users.Create(ctx, newUser("ada@example.com"))).To(Succeed())

			err := users.Create(ctx, newUser("ada@example.com"))
			Expect(err).To(MatchError(account.ErrEmailTaken))
		})

		It("treats email case as significant", func() {
			Expect(users.Create(ctx, newUser("ada@example.com"))).To(Succeed())
			Expect(users.Create(ctx, newUser("Ada@example.com"))).To(Succeed())
		})
	})

	Describe("lookups", func() {
		It("finds by email and reports existence", func() {
			user := newUser("ada@example.com")
			Expect(users.Create(ctx, user)).To(Succeed())

			got, err := users.GetByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))

			exists, err := users.EmailExists(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = users.EmailExists(ctx, "bob@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("reports missing users", func() {
			_, err := users.GetByEmail(ctx, "bob@example.com")
			Expect(err).To(MatchError(account.ErrNotFound))

			_, err = users.GetByID(ctx, ulid.Make())
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("MarkValidated", func() {
		It("is idempotent", func() {
			user := newUser("ada@example.com")
			Expect(users.Create(ctx, user)).To(Succeed())

			Expect(users.MarkValidated(ctx, user.ID)).To(Succeed())
			Expect(users.MarkValidated(ctx, user.ID)).To(Succeed())

			got, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ValidatedAccount).To(BeTrue())
		})
	})

	Describe("password reset tokens", func() {
		var user *account.User

		BeforeEach(func() {
			user = newUser("ada@example.com")
			Expect(users.Create(ctx, user)).To(Succeed())
		})

		It("only accepts the latest token", func() {
			Expect(users.SetPasswordResetToken(ctx, user.ID, "first")).To(Succeed())
			Expect(users.SetPasswordResetToken(ctx, user.ID, "second")).To(Succeed())

			ok, err := users.ConsumePasswordResetToken(ctx, user.ID, "first", "h1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = users.ConsumePasswordResetToken(ctx, user.ID, "second", "h2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			got, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("h2"))
			Expect(got.HasPendingReset()).To(BeFalse())
		})

		It("lets exactly one concurrent consumer win", func() {
			Expect(users.SetPasswordResetToken(ctx, user.ID, "token")).To(Succeed())

			const racers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					ok, err := users.ConsumePasswordResetToken(ctx, user.ID, "token", "new")
					Expect(err).NotTo(HaveOccurred())
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})
	})
})
