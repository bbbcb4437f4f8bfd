// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/pkg/errutil"
)

// isolate points XDG lookups at a temp dir and clears env overrides so the
// developer's own config cannot leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("DATABASE_URL", "")
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("database-url", "", "")
	fs.String("log-format", "json", "")
	fs.String("log-level", "info", "")
	fs.String("metrics-addr", "127.0.0.1:9100", "")
	fs.String("unrelated", "x", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "config.yaml", `
auth:
  jwt_secret: `+testSecret+`
  token_ttl: 24h
hasher:
  algorithm: argon2id
  argon2_memory_kib: 16384
avatar:
  extensions: [png]
notify:
  queue: memory
  drain_interval: 5s
log:
  format: text
`)

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL.Std())
	assert.Equal(t, "argon2id", cfg.Hasher.Algorithm)
	assert.Equal(t, uint32(16384), cfg.Hasher.Argon2MemoryKiB)
	assert.Equal(t, []string{"png"}, cfg.Avatar.Extensions)
	assert.Equal(t, QueueMemory, cfg.Notify.Queue)
	assert.Equal(t, 5*time.Second, cfg.Notify.DrainInterval.Std())
	assert.Equal(t, "text", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Hasher.BcryptCost, cfg.Hasher.BcryptCost)
	assert.Equal(t, Default().Metrics.Addr, cfg.Metrics.Addr)
}

func TestLoad_DefaultFileIsOptional(t *testing.T) {
	isolate(t)
	t.Setenv("TASKCRUSHER_AUTH__JWT_SECRET", testSecret)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default().Log, cfg.Log)
}

func TestLoad_DefaultFileIsRead(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config", "taskcrusher"), 0o700))
	writeFile(t, filepath.Join(dir, "config", "taskcrusher"), "config.yaml",
		"auth:\n  jwt_secret: "+testSecret+"\nlog:\n  level: debug\n")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "config", "taskcrusher", "config.yaml"), DefaultFile())
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	dir := isolate(t)
	_, err := Load(Options{File: filepath.Join(dir, "missing.yaml")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "config.yaml", "auth:\n  jwt_secret: "+testSecret+"\nlog:\n  format: text\n")
	t.Setenv("TASKCRUSHER_LOG__FORMAT", "json")
	t.Setenv("TASKCRUSHER_NOTIFY__MAX_ATTEMPTS", "9")
	t.Setenv("TASKCRUSHER_NOTIFY__WEBHOOK_URL", "https://hooks.example.com/mail")
	t.Setenv("TASKCRUSHER_NOTIFY__SENDER", "webhook")
	t.Setenv("TASKCRUSHER_AVATAR__EXTENSIONS", "png,webp")
	t.Setenv("TASKCRUSHER_LOCKS__LEASE", "3s")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 9, cfg.Notify.MaxAttempts)
	assert.Equal(t, SenderWebhook, cfg.Notify.Sender)
	assert.Equal(t, "https://hooks.example.com/mail", cfg.Notify.WebhookURL)
	assert.Equal(t, []string{"png", "webp"}, cfg.Avatar.Extensions)
	assert.Equal(t, 3*time.Second, cfg.Locks.Lease.Std())
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	isolate(t)
	t.Setenv("TASKCRUSHER_AUTH__JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "postgres://fallback/db")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback/db", cfg.Database.URL)

	t.Setenv("TASKCRUSHER_DATABASE__URL", "postgres://prefixed/db")
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://prefixed/db", cfg.Database.URL, "prefixed variable wins")
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	isolate(t)
	t.Setenv("TASKCRUSHER_AUTH__JWT_SECRET", testSecret)
	t.Setenv("TASKCRUSHER_LOG__LEVEL", "warn")
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := Load(Options{Flags: testFlags(t, "--database-url", "postgres://flag/db", "--log-format", "text")})
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level, "unset flag keeps env value")
	assert.Equal(t, Default().Metrics.Addr, cfg.Metrics.Addr)
}

func TestLoad_UnsetFlagsDoNotOverrideFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "config.yaml", "auth:\n  jwt_secret: "+testSecret+"\nmetrics:\n  addr: ':9300'\n")

	cfg, err := Load(Options{File: path, Flags: testFlags(t)})
	require.NoError(t, err)
	assert.Equal(t, ":9300", cfg.Metrics.Addr)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := writeFile(t, dir, ".env", "TASKCRUSHER_AUTH__JWT_SECRET="+testSecret+"\nTASKCRUSHER_LOG__LEVEL=error\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("TASKCRUSHER_AUTH__JWT_SECRET")
		_ = os.Unsetenv("TASKCRUSHER_LOG__LEVEL")
	})

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_EnvFileMissing(t *testing.T) {
	dir := isolate(t)
	_, err := Load(Options{EnvFile: filepath.Join(dir, "nope.env")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_RejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "auth:\n  jwt_secrets: x\n"},
		{"unknown section", "cache:\n  size: 1\n"},
		{"wrong type", "notify:\n  max_attempts: many\n"},
		{"bad enum", "locks:\n  backend: etcd\n"},
		{"bad duration", "auth:\n  token_ttl: forever\n"},
		{"below minimum", "hasher:\n  bcrypt_cost: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := writeFile(t, dir, "config.yaml", tt.content)
			_, err := Load(Options{File: path})
			errutil.AssertErrorContext(t, err, "file", path)
			assert.Contains(t, err.Error(), "config does not match schema")
		})
	}
}

func TestLoad_ValidatesResult(t *testing.T) {
	isolate(t)
	_, err := Load(Options{})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
