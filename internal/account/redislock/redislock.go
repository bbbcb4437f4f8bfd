// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redislock implements account.Locker with Redis leases, for
// deployments where several processes share one user store that has no
// advisory locks of its own.
package redislock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/taskcrusher/internal/account"
)

// Defaults for Config.
const (
	DefaultPrefix    = "taskcrusher:lock:user:"
	DefaultLease     = 10 * time.Second
	DefaultPoll      = 25 * time.Millisecond
	DefaultMaxWait   = 5 * time.Second
	releaseTimeout   = 2 * time.Second
	releaseNotHolder = 0
)

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken over is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var errHeld = errors.New("lock held by another owner")

// Config configures a Locker. Zero values select the defaults.
type Config struct {
	Prefix  string
	Lease   time.Duration
	Poll    time.Duration
	MaxWait time.Duration
	Logger  *slog.Logger
}

// Locker holds one Redis key per locked user. While the lock is held its
// lease is renewed every third of Config.Lease, so it only expires when the
// holder stops renewing, for example because the process died.
type Locker struct {
	client  redis.Cmdable
	prefix  string
	lease   time.Duration
	poll    time.Duration
	maxWait time.Duration
	logger  *slog.Logger
}

// New creates a Locker.
func New(client redis.Cmdable, cfg Config) *Locker {
	l := &Locker{
		client:  client,
		prefix:  cfg.Prefix,
		lease:   cfg.Lease,
		poll:    cfg.Poll,
		maxWait: cfg.MaxWait,
		logger:  cfg.Logger,
	}
	if l.prefix == "" {
		l.prefix = DefaultPrefix
	}
	if l.lease <= 0 {
		l.lease = DefaultLease
	}
	if l.poll <= 0 {
		l.poll = DefaultPoll
	}
	if l.maxWait <= 0 {
		l.maxWait = DefaultMaxWait
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// Lock polls until the lease for id is acquired, ctx ends, or MaxWait
// elapses.
func (l *Locker) Lock(ctx context.Context, id ulid.ULID) (func(), error) {
	key := l.prefix + id.String()
	token := ulid.Make().String()

	backoff := retry.WithMaxDuration(l.maxWait, retry.NewConstant(l.poll))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errHeld)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("LOCK_ACQUIRE_FAILED").
			With("user_id", id.String()).
			With("key", key).
			Wrap(err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(ctx, key, token)
		})
	}, nil
}

func (l *Locker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(l.lease/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.lease.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.logger.Warn("lock lease renewal failed", "key", key, "error", err)
		case n == releaseNotHolder:
			l.logger.Error("lock lease lost while held", "key", key, "lease", l.lease)
			return
		}
	}
}

func (l *Locker) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.ErrorContext(ctx, "lock release failed", "key", key, "error", err)
		return
	}
	if n == releaseNotHolder {
		l.logger.WarnContext(ctx, "lock lease expired before release", "key", key, "lease", l.lease)
	}
}

var _ account.Locker = (*Locker)(nil)
