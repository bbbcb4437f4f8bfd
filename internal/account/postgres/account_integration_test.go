// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/account/postgres"
	"github.com/holomush/taskcrusher/internal/store"
	"github.com/holomush/taskcrusher/internal/task"
	taskpg "github.com/holomush/taskcrusher/internal/task/postgres"
)

var _ = Describe("Account core on PostgreSQL", func() {
	var (
		ctx         context.Context
		credentials *account.CredentialStore
		tokens      *account.SessionTokenManager
		deletion    *account.CascadeDeletionCoordinator
		tasks       *taskpg.TaskRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		_, err := testPool.Exec(ctx, `TRUNCATE tasks, users`)
		Expect(err).NotTo(HaveOccurred())

		hasher, err := account.NewBcryptHasher(4)
		Expect(err).NotTo(HaveOccurred())

		tasks = taskpg.NewTaskRepository(testPool)
		credentials, err = account.NewCredentialStore(
			postgres.NewUserRepository(testPool),
			hasher,
			postgres.NewAdvisoryLocker(testPool),
			store.NewTransactor(testPool),
		)
		Expect(err).NotTo(HaveOccurred())

		tokens, err = account.NewSessionTokenManager(credentials, account.TokenConfig{
			Secret: []byte("0123456789abcdef0123456789abcdef"),
		})
		Expect(err).NotTo(HaveOccurred())

		deletion, err = account.NewCascadeDeletionCoordinator(credentials, tasks, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("enforces email uniqueness", func() {
		_, err := credentials.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())

		_, err = credentials.Register(ctx, "Other", "MIKE@example.com", "Secure123", 30)
		Expect(errors.Is(err, account.ErrDuplicateEmail)).To(BeTrue())
	})

	It("keeps every token issued concurrently", func() {
		user, err := credentials.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())

		const n = 8
		issued := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				token, err := tokens.Issue(ctx, user.ID)
				Expect(err).NotTo(HaveOccurred())
				issued[i] = token
			}()
		}
		wg.Wait()

		stored, err := credentials.Get(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Tokens).To(ConsistOf(issued))
	})

	It("keeps revoked tokens revoked when Issue races RevokeAll", func() {
		user, err := credentials.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())
		old, err := tokens.Issue(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())

		const n = 8
		issued := make([]string, n)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			Expect(tokens.RevokeAll(ctx, user.ID)).To(Succeed())
		}()
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				token, err := tokens.Issue(ctx, user.ID)
				Expect(err).NotTo(HaveOccurred())
				issued[i] = token
			}()
		}
		wg.Wait()

		stored, err := credentials.Get(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Tokens).NotTo(ContainElement(old))
		Expect(issued).To(ContainElements(stored.Tokens))
	})

	It("keeps every token issued concurrently under a process lock", func() {
		hasher, err := account.NewBcryptHasher(4)
		Expect(err).NotTo(HaveOccurred())
		processLocked, err := account.NewCredentialStore(
			postgres.NewUserRepository(testPool),
			hasher,
			account.NewKeyedLocker(),
			store.NewTransactor(testPool),
		)
		Expect(err).NotTo(HaveOccurred())
		processTokens, err := account.NewSessionTokenManager(processLocked, account.TokenConfig{
			Secret: []byte("0123456789abcdef0123456789abcdef"),
		})
		Expect(err).NotTo(HaveOccurred())

		user, err := processLocked.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())

		const n = 8
		issued := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				token, err := processTokens.Issue(ctx, user.ID)
				Expect(err).NotTo(HaveOccurred())
				issued[i] = token
			}()
		}
		wg.Wait()

		stored, err := processLocked.Get(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Tokens).To(ConsistOf(issued))
	})

	It("deletes the user with every owned task", func() {
		mike, err := credentials.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())
		jess, err := credentials.Register(ctx, "Jess", "jess@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())

		for _, owner := range []*account.User{mike, mike, jess} {
			tk, err := task.NewTask(owner.ID, "chore")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks.Create(ctx, tk)).To(Succeed())
		}

		_, err = deletion.DeleteAccount(ctx, mike.ID)
		Expect(err).NotTo(HaveOccurred())

		_, err = credentials.Get(ctx, mike.ID)
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

		left, err := tasks.ListByOwner(ctx, mike.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(left).To(BeEmpty())

		kept, err := tasks.ListByOwner(ctx, jess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(kept).To(HaveLen(1))
	})

	It("rolls task deletion back when the request is cancelled", func() {
		mike, err := credentials.Register(ctx, "Mike", "mike@example.com", "Secure123", 27)
		Expect(err).NotTo(HaveOccurred())
		tk, err := task.NewTask(mike.ID, "chore")
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks.Create(ctx, tk)).To(Succeed())

		cctx, cancel := context.WithCancel(ctx)
		cancelling, err := account.NewCascadeDeletionCoordinator(credentials, cancelAfterDelete{tasks, cancel}, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = cancelling.DeleteAccount(cctx, mike.ID)
		Expect(err).To(HaveOccurred())

		_, err = credentials.Get(ctx, mike.ID)
		Expect(err).NotTo(HaveOccurred())
		left, err := tasks.ListByOwner(ctx, mike.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(left).To(HaveLen(1))
	})
})

type cancelAfterDelete struct {
	inner  account.TaskDeleter
	cancel context.CancelFunc
}

func (d cancelAfterDelete) DeleteByOwner(ctx context.Context, owner ulid.ULID) (int64, error) {
	n, err := d.inner.DeleteByOwner(ctx, owner)
	d.cancel()
	return n, err
}
