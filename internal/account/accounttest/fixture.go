// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package accounttest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/account"
)

// Secret is a signing secret of the minimum accepted length.
const Secret = "0123456789abcdef0123456789abcdef"

// Fixture wires every account component over an in-memory Store.
type Fixture struct {
	Store       *Store
	Notifier    *RecordingNotifier
	Locks       *account.KeyedLocker
	Locker      account.Locker
	Credentials *account.CredentialStore
	Tokens      *account.SessionTokenManager
	Deletion    *account.CascadeDeletionCoordinator
	Avatars     *account.AvatarPipeline
	Service     *account.Service
}

// FixtureOption adjusts a Fixture before its components are built.
type FixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	tokenTTL time.Duration
	clock    func() time.Time
	avatar   account.AvatarConfig
	locker   account.Locker
}

// WithTokenTTL sets the session token lifetime.
func WithTokenTTL(ttl time.Duration) FixtureOption {
	return func(c *fixtureConfig) { c.tokenTTL = ttl }
}

// WithClock sets the time source of the credential store and token manager.
func WithClock(now func() time.Time) FixtureOption {
	return func(c *fixtureConfig) { c.clock = now }
}

// WithLocker replaces the default KeyedLocker. Fixture.Locks is nil then.
func WithLocker(l account.Locker) FixtureOption {
	return func(c *fixtureConfig) { c.locker = l }
}

// WithAvatarConfig sets the avatar pipeline limits.
func WithAvatarConfig(cfg account.AvatarConfig) FixtureOption {
	return func(c *fixtureConfig) { c.avatar = cfg }
}

// NewFixture builds a Fixture with the cheapest bcrypt cost.
func NewFixture(t testing.TB, opts ...FixtureOption) *Fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &Fixture{
		Store:    NewStore(),
		Notifier: &RecordingNotifier{},
		Locker:   cfg.locker,
	}
	if f.Locker == nil {
		f.Locks = account.NewKeyedLocker()
		f.Locker = f.Locks
	}

	hasher, err := account.NewBcryptHasher(4)
	require.NoError(t, err)

	var storeOpts []account.StoreOption
	if cfg.clock != nil {
		storeOpts = append(storeOpts, account.WithClock(cfg.clock))
	}
	f.Credentials, err = account.NewCredentialStore(f.Store.Users(), hasher, f.Locker, f.Store.Transactor(), storeOpts...)
	require.NoError(t, err)

	f.Tokens, err = account.NewSessionTokenManager(f.Credentials, account.TokenConfig{
		Secret: []byte(Secret),
		TTL:    cfg.tokenTTL,
		Issuer: "taskcrusher-test",
	})
	require.NoError(t, err)

	f.Deletion, err = account.NewCascadeDeletionCoordinator(f.Credentials, f.Store.Tasks(), f.Notifier)
	require.NoError(t, err)

	f.Avatars, err = account.NewAvatarPipeline(f.Credentials, cfg.avatar)
	require.NoError(t, err)

	f.Service, err = account.NewService(account.ServiceConfig{
		Credentials: f.Credentials,
		Tokens:      f.Tokens,
		Deletion:    f.Deletion,
		Avatars:     f.Avatars,
		Notifier:    f.Notifier,
	})
	require.NoError(t, err)

	return f
}
