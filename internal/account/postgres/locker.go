// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/store"
)

// AdvisoryLocker implements account.Locker with transaction-scoped advisory
// locks, so the lock holds across every process sharing the database. It
// must be called inside a store.Transactor transaction; the lock is released
// when that transaction ends.
type AdvisoryLocker struct {
	pool store.Querier
}

// NewAdvisoryLocker creates an AdvisoryLocker.
func NewAdvisoryLocker(pool store.Querier) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// Lock blocks until the advisory lock for id is held by the current
// transaction. The returned release func is a no-op.
func (l *AdvisoryLocker) Lock(ctx context.Context, id ulid.ULID) (func(), error) {
	if !store.InTx(ctx) {
		return nil, oops.Code("LOCK_REQUIRES_TX").
			With("user_id", id.String()).
			Errorf("advisory lock requires a transaction")
	}
	_, err := store.QuerierFrom(ctx, l.pool).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "user:"+id.String())
	if err != nil {
		return nil, oops.Code("LOCK_ACQUIRE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return func() {}, nil
}

// ReleasedOnCommit marks the locks as transaction scoped.
func (l *AdvisoryLocker) ReleasedOnCommit() {}

var _ account.TransactionLocker = (*AdvisoryLocker)(nil)
