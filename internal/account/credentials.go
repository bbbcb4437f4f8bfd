// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/pkg/errutil"
)

// CredentialStore owns the User entity: registration, credential lookup,
// profile updates, and the per-user read-modify-write primitive that every
// other component mutates users through.
type CredentialStore struct {
	users  UserRepository
	hasher PasswordHasher
	locks  Locker
	tx     Transactor
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// StoreOption configures a CredentialStore.
type StoreOption func(*CredentialStore)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, hasher PasswordHasher, locks Locker, tx Transactor, opts ...StoreOption) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if locks == nil {
		return nil, oops.Errorf("locker is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	s := &CredentialStore{
		users:  users,
		hasher: hasher,
		locks:  locks,
		tx:     tx,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register validates the fields, hashes the password, and persists a new user.
func (s *CredentialStore) Register(ctx context.Context, name, email, password string, age int) (*User, error) {
	return s.register(ctx, name, email, password, age, nil)
}

// register creates the user in one transaction. prepare, if set, runs on the
// new user before it is written, so whatever it adds is stored atomically
// with the account.
func (s *CredentialStore) register(ctx context.Context, name, email, password string, age int, prepare func(u *User) error) (*User, error) {
	name = NormalizeName(name)
	email = NormalizeEmail(email)
	password = NormalizePassword(password)

	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := ValidateAge(age); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, wrapUnlessClassified(err, "USER_REGISTER_FAILED", "hash password")
	}

	now := s.now()
	user := &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Age:          age,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prepare != nil {
		if err := prepare(user); err != nil {
			return nil, err
		}
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return oops.Code("USER_REGISTER_ABORTED").Wrap(err)
		}
		if err := s.users.Create(ctx, user); err != nil {
			return wrapUnlessClassified(err, "USER_REGISTER_FAILED", "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByCredentials returns the user owning email if password matches.
// Unknown emails and wrong passwords fail identically with ErrAuthentication,
// and both paths run a full hash verification.
func (s *CredentialStore) FindByCredentials(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	password = NormalizePassword(password)

	user, lookupErr := s.users.GetByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("USER_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}
	exists := lookupErr == nil

	target := s.dummy()
	if exists {
		target = user.PasswordHash
	}

	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil && exists {
		return nil, oops.Code("USER_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid || verifyErr != nil {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrapf(ErrAuthentication, "unable to login")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}
	return user, nil
}

// upgradeHash re-derives the stored hash from a verified plaintext. Failures
// are logged; the login itself already succeeded.
func (s *CredentialStore) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	oldHash := user.PasswordHash
	updated, err := s.Modify(ctx, user.ID, func(u *User) error {
		if u.PasswordHash == oldHash {
			u.PasswordHash = newHash
		}
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	*user = *updated
}

// UpdateProfile applies changes to the user. Only the password field is
// re-hashed, and only when it is part of changes.
func (s *CredentialStore) UpdateProfile(ctx context.Context, id ulid.ULID, changes ProfileChanges) (*User, error) {
	changes, err := changes.normalize()
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		return s.Get(ctx, id)
	}

	var newHash string
	if changes.Password != nil {
		if newHash, err = s.hasher.Hash(*changes.Password); err != nil {
			return nil, wrapUnlessClassified(err, "USER_UPDATE_FAILED", "hash password")
		}
	}

	return s.Modify(ctx, id, func(u *User) error {
		if changes.Name != nil {
			u.Name = *changes.Name
		}
		if changes.Email != nil {
			u.Email = *changes.Email
		}
		if changes.Age != nil {
			u.Age = *changes.Age
		}
		if changes.Password != nil {
			u.PasswordHash = newHash
		}
		return nil
	})
}

// Save persists the current state of user and bumps UpdatedAt.
func (s *CredentialStore) Save(ctx context.Context, user *User) error {
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return wrapUnlessClassified(err, "USER_SAVE_FAILED", "update user")
	}
	return nil
}

// Get loads a user by id.
func (s *CredentialStore) Get(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, wrapUnlessClassified(err, "USER_GET_FAILED", "get user by id")
	}
	return user, nil
}

// Modify loads the user, applies fn, and saves the result in one store
// transaction, holding the per-user lock until that transaction ends. If fn
// returns an error nothing is saved.
func (s *CredentialStore) Modify(ctx context.Context, id ulid.ULID, fn func(u *User) error) (*User, error) {
	var out *User
	err := s.locked(ctx, id, func(ctx context.Context) error {
		user, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		if err := s.Save(ctx, user); err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// locked runs fn in a transaction while holding the lock for id. The lock
// is held until the transaction has committed or rolled back. It must not be
// called with a ctx that already carries a transaction.
func (s *CredentialStore) locked(ctx context.Context, id ulid.ULID, fn func(ctx context.Context) error) error {
	if _, ok := s.locks.(TransactionLocker); ok {
		return s.tx.InTransaction(ctx, func(ctx context.Context) error {
			release, err := s.locks.Lock(ctx, id)
			if err != nil {
				return err
			}
			defer release()
			return fn(ctx)
		})
	}

	release, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return s.tx.InTransaction(ctx, fn)
}

// dummy returns a hash of a random secret in the configured format, so that
// verifying against it costs the same as verifying a real credential.
func (s *CredentialStore) dummy() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf) //nolint:errcheck // crypto/rand.Read never fails on supported platforms
		hash, err := s.hasher.Hash(hex.EncodeToString(buf))
		if err != nil {
			s.logger.Warn("dummy hash generation failed", "error", err)
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// wrapUnlessClassified returns err unchanged if it already wraps a taxonomy
// sentinel and otherwise attaches code and operation to it.
func wrapUnlessClassified(err error, code, operation string) error {
	if KindOf(err) != KindInternal {
		return err
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}
