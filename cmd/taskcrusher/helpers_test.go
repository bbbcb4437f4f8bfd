// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/account/accounttest"
	"github.com/holomush/taskcrusher/internal/config"
	"github.com/holomush/taskcrusher/internal/store"
)

const (
	testDatabaseURL = "postgres://crusher:secret@db:5432/taskcrusher"
	testPassword    = "s3cret-pass"
)

// testConfig returns a valid configuration that needs no external service.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.URL = testDatabaseURL
	cfg.Auth.JWTSecret = accounttest.Secret
	cfg.Locks.Backend = config.LocksMemory
	cfg.Notify.Queue = config.QueueMemory
	cfg.Metrics.Addr = ""
	cfg.Log.Level = "error"
	return &cfg
}

// harness runs commands against one in-memory account fixture.
type harness struct {
	t       *testing.T
	fixture *accounttest.Fixture
	cfg     *config.Config
	deps    *Deps
	stdin   string
	// apps counts NewApp calls; closed counts App.Close calls.
	apps, closed int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		fixture: accounttest.NewFixture(t),
		cfg:     testConfig(),
	}
	h.deps = &Deps{
		LoadConfig: func(config.Options) (*config.Config, error) {
			cfg := *h.cfg
			return &cfg, nil
		},
		NewApp: func(context.Context, *config.Config, *slog.Logger) (*App, error) {
			h.apps++
			app := &App{Service: h.fixture.Service, Tasks: h.fixture.Store.Tasks()}
			app.OnClose(func(context.Context) error {
				h.closed++
				return nil
			})
			return app, nil
		},
		NewMigrator: func(string) (Migrator, error) {
			return &fakeMigrator{}, nil
		},
	}
	return h
}

// run executes the CLI with args and returns standard output and the error.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	deps := *h.deps
	deps.Stdin = strings.NewReader(h.stdin)

	cmd := NewRootCmd(&deps)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// mustRun is run that fails the test on error.
func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "taskcrusher %s", strings.Join(args, " "))
	return out
}

// register creates an account and returns its first session.
func (h *harness) register(name, email string) account.AuthResult {
	h.t.Helper()
	out := h.mustRun("user", "register", "--name", name, "--email", email, "--password", testPassword, "--age", "30")
	var result account.AuthResult
	require.NoError(h.t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(h.t, result.Token)
	return result
}

// fakeMigrator is a Migrator over an in-memory version number.
type fakeMigrator struct {
	version    uint
	dirty      bool
	pending    []store.Migration
	err        error
	upCalls    int
	downCalls  int
	steps      []int
	forced     []int
	closeCalls int
}

func (m *fakeMigrator) Up() error {
	m.upCalls++
	if m.err != nil {
		return m.err
	}
	if n := len(m.pending); n > 0 {
		m.version = m.pending[n-1].Version
		m.pending = nil
	}
	return nil
}

func (m *fakeMigrator) Down() error {
	m.downCalls++
	return m.err
}

func (m *fakeMigrator) Steps(n int) error {
	m.steps = append(m.steps, n)
	return m.err
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, m.err
}

func (m *fakeMigrator) Force(v int) error {
	m.forced = append(m.forced, v)
	return m.err
}

func (m *fakeMigrator) Pending() ([]store.Migration, error) {
	return m.pending, m.err
}

func (m *fakeMigrator) Close() error {
	m.closeCalls++
	return nil
}
