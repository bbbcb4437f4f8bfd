// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Locker serializes read-modify-write sequences on a single user.
//
// Lock blocks until the lock for id is held or ctx is done. The returned
// release function is safe to call more than once. Implementations tied to a
// transaction may release on commit instead and return a no-op.
type Locker interface {
	Lock(ctx context.Context, id ulid.ULID) (release func(), err error)
}

// TransactionLocker is a Locker whose locks belong to the current store
// transaction and are released when it ends. CredentialStore takes these
// locks inside the transaction. Any other Locker is acquired before the
// transaction begins and released after it commits, so a second writer
// never reads the row before the first writer's change is visible.
type TransactionLocker interface {
	Locker
	ReleasedOnCommit()
}

// Transactor runs fn inside a store transaction. The transaction commits when
// fn returns nil and rolls back otherwise. Repositories called with the ctx
// passed to fn take part in the transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// KeyedLocker is an in-process Locker holding one mutex per user id.
// Entries are dropped once no goroutine holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[ulid.ULID]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[ulid.ULID]*keyedEntry)}
}

// Lock acquires the lock for id.
func (l *KeyedLocker) Lock(ctx context.Context, id ulid.ULID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, e)
		return nil, oops.Code("LOCK_ACQUIRE_FAILED").With("user_id", id.String()).Wrap(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(id, e)
		})
	}, nil
}

// Len returns the number of ids currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) unref(id ulid.ULID, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

var _ Locker = (*KeyedLocker)(nil)
