// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool, transactions, and the
// embedded schema migrations shared by the account and task repositories.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultMaxConns       = 10
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 500 * time.Millisecond
)

// ConnectConfig configures Connect.
type ConnectConfig struct {
	URL      string
	MaxConns int32

	// Retries is how many times a failed ping is retried with exponential
	// backoff starting at Backoff. Zero selects the defaults.
	Retries uint64
	Backoff time.Duration

	Logger *slog.Logger
}

// Connect opens a pool and pings it until the server answers or the retry
// budget runs out.
func Connect(ctx context.Context, cfg ConnectConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_URL_INVALID").Wrap(err)
	}
	poolCfg.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = DefaultConnectRetries
	}
	base := cfg.Backoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(retries, retry.WithJitterPercent(10, retry.NewExponential(base)))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"host", poolCfg.ConnConfig.Host,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", poolCfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
