// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the account repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/store"
)

const userColumns = `id, name, email, password_hash, age, tokens, avatar, created_at, updated_at`

// UserRepository implements account.UserRepository. Every method runs on the
// transaction carried by ctx, if any.
type UserRepository struct {
	pool store.Querier
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(pool store.Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *account.User) error {
	_, err := store.QuerierFrom(ctx, r.pool).Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Age,
		tokensArg(user.Tokens),
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "USER_CREATE_FAILED", "insert user", user)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	row := store.QuerierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	row := store.QuerierFrom(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return user, nil
}

// Update replaces every mutable column of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *account.User) error {
	tag, err := store.QuerierFrom(ctx, r.pool).Exec(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, age = $5,
		    tokens = $6, avatar = $7, updated_at = $8
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Age,
		tokensArg(user.Tokens),
		user.Avatar,
		user.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "USER_UPDATE_FAILED", "update user", user)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

// Delete removes a user. Tasks referencing the user block the delete.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := store.QuerierFrom(ctx, r.pool).Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*account.User, error) {
	var (
		u     account.User
		idStr string
	)
	if err := row.Scan(&idStr, &u.Name, &u.Email, &u.PasswordHash, &u.Age,
		&u.Tokens, &u.Avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	u.ID = id
	return &u, nil
}

// writeError maps a unique violation on the email index to
// account.ErrDuplicateEmail.
func writeError(err error, code, operation string, user *account.User) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			With("constraint", pgErr.ConstraintName).
			Wrap(account.ErrDuplicateEmail)
	}
	return oops.Code(code).With("operation", operation).With("id", user.ID.String()).Wrap(err)
}

// tokensArg keeps the NOT NULL tokens column from receiving a nil slice.
func tokensArg(tokens []string) []string {
	if tokens == nil {
		return []string{}
	}
	return tokens
}

var _ account.UserRepository = (*UserRepository)(nil)
