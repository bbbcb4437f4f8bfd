// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/taskcrusher/internal/store"
)

var _ = Describe("Postgres store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("taskcrusher_test"),
			postgres.WithUsername("taskcrusher"),
			postgres.WithPassword("taskcrusher"),
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

		pool, err = store.Connect(ctx, store.ConnectConfig{URL: connStr})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	insertUser := func(ctx context.Context, q store.Querier, id, email string) error {
		_, err := q.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash) VALUES ($1, 'n', $2, 'h')`, id, email)
		return err
	}

	Describe("Transactor", func() {
		It("commits when fn succeeds", func() {
			tx := store.NewTransactor(pool)
			err := tx.InTransaction(ctx, func(ctx context.Context) error {
				return insertUser(ctx, store.QuerierFrom(ctx, pool), "01TXCOMMIT", "commit@example.com")
			})
			Expect(err).NotTo(HaveOccurred())

			var email string
			Expect(pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, "01TXCOMMIT").Scan(&email)).To(Succeed())
			Expect(email).To(Equal("commit@example.com"))
		})

		It("rolls back when fn fails", func() {
			tx := store.NewTransactor(pool)
			err := tx.InTransaction(ctx, func(ctx context.Context) error {
				if err := insertUser(ctx, store.QuerierFrom(ctx, pool), "01TXROLLBACK", "rollback@example.com"); err != nil {
					return err
				}
				return errors.New("force rollback")
			})
			Expect(err).To(HaveOccurred())

			err = pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, "01TXROLLBACK").Scan(new(string))
			Expect(errors.Is(err, pgx.ErrNoRows)).To(BeTrue())
		})
	})

	Describe("schema", func() {
		It("rejects a negative age", func() {
			_, err := pool.Exec(ctx,
				`INSERT INTO users (id, name, email, password_hash, age) VALUES ('01NEGAGE', 'n', 'neg@example.com', 'h', -1)`)
			Expect(err).To(HaveOccurred())
		})

		It("rejects tasks without an owner", func() {
			_, err := pool.Exec(ctx,
				`INSERT INTO tasks (id, owner, description) VALUES ('01ORPHAN', '01NOBODY', 'x')`)
			Expect(err).To(HaveOccurred())
		})
	})
})
