// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads Task Crusher configuration from a YAML file, the
// environment, and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/logging"
	"github.com/holomush/taskcrusher/internal/notify"
	"github.com/holomush/taskcrusher/internal/store"
	"github.com/holomush/taskcrusher/internal/xdg"
)

// Config is the complete runtime configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" json:"auth,omitempty" yaml:"auth"`
	Hasher   HasherConfig   `koanf:"hasher" json:"hasher,omitempty" yaml:"hasher"`
	Avatar   AvatarConfig   `koanf:"avatar" json:"avatar,omitempty" yaml:"avatar"`
	Locks    LocksConfig    `koanf:"locks" json:"locks,omitempty" yaml:"locks"`
	Notify   NotifyConfig   `koanf:"notify" json:"notify,omitempty" yaml:"notify"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL            string   `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectTimeout Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" yaml:"connect_timeout" jsonschema:"description=Upper bound on connecting including retries"`
	ConnectRetries uint64   `koanf:"connect_retries" json:"connect_retries,omitempty" yaml:"connect_retries" jsonschema:"minimum=1"`
	MaxConns       int32    `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=1"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret string   `koanf:"jwt_secret" json:"jwt_secret,omitempty" yaml:"jwt_secret"`
	TokenTTL  Duration `koanf:"token_ttl" json:"token_ttl,omitempty" yaml:"token_ttl" jsonschema:"description=Token lifetime; 0 issues tokens without expiry"`
	Issuer    string   `koanf:"issuer" json:"issuer,omitempty" yaml:"issuer"`
}

// HasherConfig selects and tunes the password hash.
type HasherConfig struct {
	Algorithm       string `koanf:"algorithm" json:"algorithm,omitempty" yaml:"algorithm" jsonschema:"enum=bcrypt,enum=argon2id"`
	BcryptCost      int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" yaml:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
	Argon2Time      uint32 `koanf:"argon2_time" json:"argon2_time,omitempty" yaml:"argon2_time" jsonschema:"minimum=1"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib" json:"argon2_memory_kib,omitempty" yaml:"argon2_memory_kib" jsonschema:"minimum=8"`
	Argon2Threads   uint8  `koanf:"argon2_threads" json:"argon2_threads,omitempty" yaml:"argon2_threads" jsonschema:"minimum=1"`
}

// AvatarConfig bounds avatar uploads.
type AvatarConfig struct {
	MaxBytes   int64    `koanf:"max_bytes" json:"max_bytes,omitempty" yaml:"max_bytes" jsonschema:"minimum=1"`
	Size       int      `koanf:"size" json:"size,omitempty" yaml:"size" jsonschema:"minimum=1"`
	Extensions []string `koanf:"extensions" json:"extensions,omitempty" yaml:"extensions"`
}

// LocksConfig selects the per-user lock backend. Lease is the redis lease
// length; held locks renew it every third of the lease, so it bounds how long
// a crashed holder blocks others.
type LocksConfig struct {
	Backend  string   `koanf:"backend" json:"backend,omitempty" yaml:"backend" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	RedisURL string   `koanf:"redis_url" json:"redis_url,omitempty" yaml:"redis_url"`
	Lease    Duration `koanf:"lease" json:"lease,omitempty" yaml:"lease"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	Sender        string   `koanf:"sender" json:"sender,omitempty" yaml:"sender" jsonschema:"enum=log,enum=webhook"`
	WebhookURL    string   `koanf:"webhook_url" json:"webhook_url,omitempty" yaml:"webhook_url"`
	From          string   `koanf:"from" json:"from,omitempty" yaml:"from"`
	Queue         string   `koanf:"queue" json:"queue,omitempty" yaml:"queue" jsonschema:"enum=memory,enum=bolt"`
	BoltPath      string   `koanf:"bolt_path" json:"bolt_path,omitempty" yaml:"bolt_path"`
	DrainInterval Duration `koanf:"drain_interval" json:"drain_interval,omitempty" yaml:"drain_interval"`
	MaxAttempts   int      `koanf:"max_attempts" json:"max_attempts,omitempty" yaml:"max_attempts" jsonschema:"minimum=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the metrics and health server.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// Lock backends.
const (
	LocksMemory   = "memory"
	LocksPostgres = "postgres"
	LocksRedis    = "redis"
)

// Notification senders and queues.
const (
	SenderLog     = "log"
	SenderWebhook = "webhook"
	QueueMemory   = "memory"
	QueueBolt     = "bolt"
)

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			ConnectTimeout:  Duration(30 * time.Second),
			ConnectRetries:  store.DefaultConnectRetries,
			MaxConns:        store.DefaultMaxConns,
		},
		Auth: AuthConfig{
			Issuer: "taskcrusher",
		},
		Hasher: HasherConfig{
			Algorithm:       account.AlgorithmBcrypt,
			BcryptCost:      account.DefaultBcryptCost,
			Argon2Time:      account.DefaultArgon2Time,
			Argon2MemoryKiB: account.DefaultArgon2MemoryKiB,
			Argon2Threads:   account.DefaultArgon2Threads,
		},
		Avatar: AvatarConfig{
			MaxBytes:   account.DefaultAvatarMaxBytes,
			Size:       account.DefaultAvatarSize,
			Extensions: []string{"jpg", "jpeg", "png"},
		},
		Locks: LocksConfig{
			Backend: LocksPostgres,
			Lease:   Duration(10 * time.Second),
		},
		Notify: NotifyConfig{
			Sender:        SenderLog,
			From:          "noreply@taskcrusher.dev",
			Queue:         QueueBolt,
			BoltPath:      filepath.Join(xdg.DataDir(), "notify.db"),
			DrainInterval: Duration(notify.DefaultDrainInterval),
			MaxAttempts:   notify.DefaultMaxAttempts,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
	}
}

// Validate checks cross-field rules the schema cannot express. Every
// problem is reported, not just the first.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Auth.JWTSecret == "" {
		add("auth.jwt_secret is required")
	} else if len(c.Auth.JWTSecret) < account.MinSecretLength {
		add("auth.jwt_secret must be at least %d bytes", account.MinSecretLength)
	}
	if c.Auth.TokenTTL < 0 {
		add("auth.token_ttl must not be negative")
	}
	if !slices.Contains([]string{account.AlgorithmBcrypt, account.AlgorithmArgon2id}, c.Hasher.Algorithm) {
		add("hasher.algorithm must be bcrypt or argon2id, got %q", c.Hasher.Algorithm)
	}
	if c.Avatar.MaxBytes <= 0 {
		add("avatar.max_bytes must be positive")
	}
	if c.Avatar.Size <= 0 {
		add("avatar.size must be positive")
	}
	if len(c.Avatar.Extensions) == 0 {
		add("avatar.extensions must not be empty")
	}
	switch c.Locks.Backend {
	case LocksMemory, LocksPostgres:
	case LocksRedis:
		if c.Locks.RedisURL == "" {
			add("locks.redis_url is required when locks.backend is redis")
		}
	default:
		add("locks.backend must be memory, postgres or redis, got %q", c.Locks.Backend)
	}
	switch c.Notify.Sender {
	case SenderLog:
	case SenderWebhook:
		if c.Notify.WebhookURL == "" {
			add("notify.webhook_url is required when notify.sender is webhook")
		}
	default:
		add("notify.sender must be log or webhook, got %q", c.Notify.Sender)
	}
	switch c.Notify.Queue {
	case QueueMemory:
	case QueueBolt:
		if c.Notify.BoltPath == "" {
			add("notify.bolt_path is required when notify.queue is bolt")
		}
	default:
		add("notify.queue must be memory or bolt, got %q", c.Notify.Queue)
	}
	if c.Notify.MaxAttempts < 1 {
		add("notify.max_attempts must be at least 1")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level %q is not a level", c.Log.Level)
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase reports CONFIG_INVALID when no database URL is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (flag --database-url, TASKCRUSHER_DATABASE__URL or DATABASE_URL)")
	}
	return nil
}

const redactedSecret = "********"

// Redacted returns a copy safe to print: the signing secret is masked and
// passwords are stripped from URLs.
func (c Config) Redacted() Config {
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = redactedSecret
	}
	c.Database.URL = redactURL(c.Database.URL)
	c.Locks.RedisURL = redactURL(c.Locks.RedisURL)
	c.Notify.WebhookURL = redactURL(c.Notify.WebhookURL)
	c.Avatar.Extensions = slices.Clone(c.Avatar.Extensions)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedSecret
	}
	return u.Redacted()
}

// Account converts h to the account package form.
func (h HasherConfig) Account() account.HasherConfig {
	return account.HasherConfig{
		Algorithm:       h.Algorithm,
		BcryptCost:      h.BcryptCost,
		Argon2Time:      h.Argon2Time,
		Argon2MemoryKiB: h.Argon2MemoryKiB,
		Argon2Threads:   h.Argon2Threads,
	}
}

// Account converts a to the account package form.
func (a AuthConfig) Account() account.TokenConfig {
	return account.TokenConfig{
		Secret: []byte(a.JWTSecret),
		TTL:    a.TokenTTL.Std(),
		Issuer: a.Issuer,
	}
}

// Account converts a to the account package form.
func (a AvatarConfig) Account() account.AvatarConfig {
	return account.AvatarConfig{
		MaxBytes:   a.MaxBytes,
		Size:       a.Size,
		Extensions: slices.Clone(a.Extensions),
	}
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("value", string(text)).Wrap(err)
	}
	*d = Duration(v)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     durationPattern,
		Description: "Go duration such as 500ms, 30s or 1h30m",
	}
}

const durationPattern = `^(0|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`
