// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is an account holder. It is owned by CredentialStore; other components
// mutate it only through CredentialStore.Modify.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	Age          int
	Tokens       []string
	Avatar       []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the view of a User that may leave the core. It never carries
// the password hash, session tokens, or avatar bytes.
type PublicUser struct {
	ID        ulid.ULID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	HasAvatar bool      `json:"has_avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public returns the public view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		HasAvatar: len(u.Avatar) > 0,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HasToken reports whether token is in the active set.
func (u *User) HasToken(token string) bool {
	return slices.Contains(u.Tokens, token)
}

// AddToken appends token to the active set.
func (u *User) AddToken(token string) {
	u.Tokens = append(u.Tokens, token)
}

// RemoveToken removes every occurrence of token from the active set and
// reports whether anything was removed.
func (u *User) RemoveToken(token string) bool {
	before := len(u.Tokens)
	u.Tokens = slices.DeleteFunc(u.Tokens, func(t string) bool { return t == token })
	return len(u.Tokens) != before
}

// ClearTokens empties the active set.
func (u *User) ClearTokens() {
	u.Tokens = nil
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.Tokens = slices.Clone(u.Tokens)
	c.Avatar = slices.Clone(u.Avatar)
	return &c
}

// UserRepository manages user persistence.
//
// Implementations must enforce email uniqueness atomically and report a clash
// as ErrDuplicateEmail. Missing users are reported as ErrNotFound.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update replaces every mutable field of an existing user.
	Update(ctx context.Context, user *User) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error
}
