// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package accounttest provides in-memory collaborators for account tests.
package accounttest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/task"
)

// Store is an in-memory user and task store. Writes made inside a
// transaction stay private to it until commit, and transactions run
// concurrently, so reads inside one see only committed state plus its own
// writes. Per-user exclusion is left to the account.Locker under test.
type Store struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*account.User
	tasks map[ulid.ULID]*task.Task

	commitDelay    time.Duration
	failUserDelete error
	failTaskDelete error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users: make(map[ulid.ULID]*account.User),
		tasks: make(map[ulid.ULID]*task.Task),
	}
}

// Users returns the store's account.UserRepository.
func (s *Store) Users() *Users { return &Users{s: s} }

// Tasks returns the store's task.Repository.
func (s *Store) Tasks() *Tasks { return &Tasks{s: s} }

// Transactor returns the store's account.Transactor.
func (s *Store) Transactor() *Transactor { return &Transactor{s: s} }

// SetCommitDelay makes every commit wait d before its writes become
// visible, widening the window in which concurrent transactions overlap.
func (s *Store) SetCommitDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitDelay = d
}

// FailUserDelete makes every later user deletion fail with err. Pass nil to clear.
func (s *Store) FailUserDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUserDelete = err
}

// FailTaskDelete makes every later task deletion fail with err. Pass nil to clear.
func (s *Store) FailTaskDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTaskDelete = err
}

// UserCount returns the number of committed users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// TaskCount returns the number of committed tasks across all owners.
func (s *Store) TaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// txWrites holds the writes of one open transaction. A nil entry marks a
// deletion.
type txWrites struct {
	users map[ulid.ULID]*account.User
	tasks map[ulid.ULID]*task.Task
}

type txKey struct{}

func writesFrom(ctx context.Context) *txWrites {
	w, _ := ctx.Value(txKey{}).(*txWrites)
	return w
}

// userView returns the users visible to ctx. Callers hold s.mu.
func (s *Store) userView(ctx context.Context) map[ulid.ULID]*account.User {
	w := writesFrom(ctx)
	if w == nil {
		return s.users
	}
	view := maps.Clone(s.users)
	for id, u := range w.users {
		if u == nil {
			delete(view, id)
			continue
		}
		view[id] = u
	}
	return view
}

// taskView returns the tasks visible to ctx. Callers hold s.mu.
func (s *Store) taskView(ctx context.Context) map[ulid.ULID]*task.Task {
	w := writesFrom(ctx)
	if w == nil {
		return s.tasks
	}
	view := maps.Clone(s.tasks)
	for id, t := range w.tasks {
		if t == nil {
			delete(view, id)
			continue
		}
		view[id] = t
	}
	return view
}

// putUser writes u, or deletes id when u is nil. Callers hold s.mu for writing.
func (s *Store) putUser(ctx context.Context, id ulid.ULID, u *account.User) {
	if w := writesFrom(ctx); w != nil {
		w.users[id] = u
		return
	}
	if u == nil {
		delete(s.users, id)
		return
	}
	s.users[id] = u
}

// putTask writes t, or deletes id when t is nil. Callers hold s.mu for writing.
func (s *Store) putTask(ctx context.Context, id ulid.ULID, t *task.Task) {
	if w := writesFrom(ctx); w != nil {
		w.tasks[id] = t
		return
	}
	if t == nil {
		delete(s.tasks, id)
		return
	}
	s.tasks[id] = t
}

// commit applies w. Email uniqueness is checked again against the
// committed state, as a unique index would.
func (s *Store) commit(w *txWrites) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := maps.Clone(s.users)
	for id, u := range w.users {
		if u == nil {
			delete(users, id)
			continue
		}
		users[id] = u
	}
	for id, u := range w.users {
		if u != nil && emailTaken(users, u.Email, id) {
			return oops.Code("USER_EMAIL_TAKEN").With("email", u.Email).Wrap(account.ErrDuplicateEmail)
		}
	}
	s.users = users

	for id, t := range w.tasks {
		if t == nil {
			delete(s.tasks, id)
			continue
		}
		s.tasks[id] = t
	}
	return nil
}

// Users is an in-memory account.UserRepository.
type Users struct {
	s *Store
}

// Create stores a copy of user.
func (r *Users) Create(ctx context.Context, user *account.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	view := r.s.userView(ctx)
	if _, ok := view[user.ID]; ok {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("duplicate id")
	}
	if emailTaken(view, user.Email, user.ID) {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(account.ErrDuplicateEmail)
	}
	r.s.putUser(ctx, user.ID, user.Clone())
	return nil
}

// GetByID returns a copy of the user.
func (r *Users) GetByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.userView(ctx)[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return u.Clone(), nil
}

// GetByEmail returns a copy of the user with email.
func (r *Users) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.userView(ctx) {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
}

// Update replaces the stored user.
func (r *Users) Update(ctx context.Context, user *account.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	view := r.s.userView(ctx)
	if _, ok := view[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(account.ErrNotFound)
	}
	if emailTaken(view, user.Email, user.ID) {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(account.ErrDuplicateEmail)
	}
	r.s.putUser(ctx, user.ID, user.Clone())
	return nil
}

// Delete removes the user.
func (r *Users) Delete(ctx context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failUserDelete != nil {
		return oops.Code("USER_DELETE_FAILED").With("id", id.String()).Wrap(r.s.failUserDelete)
	}
	if _, ok := r.s.userView(ctx)[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	r.s.putUser(ctx, id, nil)
	return nil
}

func emailTaken(users map[ulid.ULID]*account.User, email string, self ulid.ULID) bool {
	for id, u := range users {
		if id != self && u.Email == email {
			return true
		}
	}
	return false
}

// Tasks is an in-memory task.Repository.
type Tasks struct {
	s *Store
}

// Create stores a copy of t.
func (r *Tasks) Create(ctx context.Context, t *task.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *t
	r.s.putTask(ctx, t.ID, &c)
	return nil
}

// ListByOwner returns copies of the owner's tasks, oldest first.
func (r *Tasks) ListByOwner(ctx context.Context, owner ulid.ULID) ([]*task.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	view := r.s.taskView(ctx)
	var out []*task.Task
	for _, id := range slices.SortedFunc(maps.Keys(view), ulid.ULID.Compare) {
		if t := view[id]; t.Owner == owner {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// DeleteByOwner removes the owner's tasks.
func (r *Tasks) DeleteByOwner(ctx context.Context, owner ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failTaskDelete != nil {
		return 0, oops.Code("TASK_DELETE_FAILED").With("owner", owner.String()).Wrap(r.s.failTaskDelete)
	}
	var n int64
	for id, t := range r.s.taskView(ctx) {
		if t.Owner == owner {
			r.s.putTask(ctx, id, nil)
			n++
		}
	}
	return n, nil
}

// Transactor is an account.Transactor over Store.
type Transactor struct {
	s *Store
}

// InTransaction runs fn with its writes buffered and applies them only if
// fn succeeds and ctx is still live at commit. Nested calls join the outer
// transaction.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if writesFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	w := &txWrites{
		users: make(map[ulid.ULID]*account.User),
		tasks: make(map[ulid.ULID]*task.Task),
	}
	if err := fn(context.WithValue(ctx, txKey{}, w)); err != nil {
		return err
	}

	t.s.mu.RLock()
	delay := t.s.commitDelay
	t.s.mu.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	if err := t.s.commit(w); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

var (
	_ account.UserRepository = (*Users)(nil)
	_ account.TaskDeleter    = (*Tasks)(nil)
	_ task.Repository        = (*Tasks)(nil)
	_ account.Transactor     = (*Transactor)(nil)
)
