// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the shortest accepted HS256 signing secret, in bytes.
const MinSecretLength = 32

// TokenConfig configures session token issuance.
type TokenConfig struct {
	// Secret signs every token. It must be at least MinSecretLength bytes.
	Secret []byte

	// TTL bounds token lifetime. Zero issues tokens without an expiry claim;
	// such tokens stay valid until revoked.
	TTL time.Duration

	// Issuer is written to and required in the iss claim when non-empty.
	Issuer string
}

// SessionTokenManager issues signed session tokens and tracks which of them
// are still active. A token authenticates only while it is both correctly
// signed and present in its user's active set.
type SessionTokenManager struct {
	store  *CredentialStore
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

// NewSessionTokenManager creates a SessionTokenManager.
func NewSessionTokenManager(store *CredentialStore, cfg TokenConfig) (*SessionTokenManager, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", cfg.TTL).Errorf("token ttl cannot be negative")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return store.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &SessionTokenManager{
		store:  store,
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Issue signs a new token for the user and adds it to the active set.
// Tokens whose expiry has passed are pruned from the set at the same time.
func (m *SessionTokenManager) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	now := m.store.now()
	token, err := m.sign(userID, now)
	if err != nil {
		return "", err
	}

	_, err = m.store.Modify(ctx, userID, func(u *User) error {
		u.Tokens = m.pruneExpired(u.Tokens, now)
		u.AddToken(token)
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// attach signs a token for a user that has not been stored yet and adds it
// to the user's active set.
func (m *SessionTokenManager) attach(u *User) (string, error) {
	token, err := m.sign(u.ID, m.store.now())
	if err != nil {
		return "", err
	}
	u.AddToken(token)
	return token, nil
}

func (m *SessionTokenManager) sign(userID ulid.ULID, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  userID.String(),
		ID:       ulid.Make().String(),
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   m.issuer,
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return token, nil
}

// Authenticate returns the user a token was issued to. It fails with
// ErrAuthorization when the signature or claims are invalid, the user no
// longer exists, or the token has been revoked.
func (m *SessionTokenManager) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code("TOKEN_EMPTY").Wrapf(ErrAuthorization, "please authenticate")
	}

	userID, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	user, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("TOKEN_USER_NOT_FOUND").
			With("user_id", userID.String()).
			Wrapf(ErrAuthorization, "please authenticate")
	}
	if err != nil {
		return nil, err
	}

	if !user.HasToken(token) {
		return nil, oops.Code("TOKEN_REVOKED").
			With("user_id", userID.String()).
			Wrapf(ErrAuthorization, "please authenticate")
	}
	return user, nil
}

// Revoke removes token from the user's active set. Revoking a token that is
// not active is a no-op.
func (m *SessionTokenManager) Revoke(ctx context.Context, userID ulid.ULID, token string) error {
	_, err := m.store.Modify(ctx, userID, func(u *User) error {
		u.RemoveToken(token)
		return nil
	})
	return err
}

// RevokeAll empties the user's active set.
func (m *SessionTokenManager) RevokeAll(ctx context.Context, userID ulid.ULID) error {
	_, err := m.store.Modify(ctx, userID, func(u *User) error {
		u.ClearTokens()
		return nil
	})
	return err
}

func (m *SessionTokenManager) parse(token string) (ulid.ULID, error) {
	var claims jwt.RegisteredClaims
	_, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ulid.ULID{}, oops.Code("TOKEN_EXPIRED").Wrapf(ErrAuthorization, "please authenticate")
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").
			With("reason", err.Error()).
			Wrapf(ErrAuthorization, "please authenticate")
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").
			With("reason", "subject is not a user id").
			Wrapf(ErrAuthorization, "please authenticate")
	}
	return userID, nil
}

// pruneExpired drops tokens whose exp claim lies before now. Tokens that
// cannot be decoded are kept; only explicit revocation removes them.
func (m *SessionTokenManager) pruneExpired(tokens []string, now time.Time) []string {
	kept := tokens[:0:0]
	for _, t := range tokens {
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(t, &claims); err == nil &&
			claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
