// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/holomush/taskcrusher/internal/account"
	accountpg "github.com/holomush/taskcrusher/internal/account/postgres"
	"github.com/holomush/taskcrusher/internal/account/redislock"
	"github.com/holomush/taskcrusher/internal/config"
	"github.com/holomush/taskcrusher/internal/notify"
	"github.com/holomush/taskcrusher/internal/observability"
	"github.com/holomush/taskcrusher/internal/store"
	"github.com/holomush/taskcrusher/internal/task"
	taskpg "github.com/holomush/taskcrusher/internal/task/postgres"
)

// closeTimeout bounds App.Close when the caller has no deadline of its own.
const closeTimeout = 10 * time.Second

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// LoadConfig loads and validates configuration.
	// Default: config.Load
	LoadConfig func(opts config.Options) (*config.Config, error)

	// NewApp wires the account service and its collaborators.
	// Default: newApp
	NewApp func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error)

	// NewMigrator opens a migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// NewObservabilityServer creates the metrics and health server.
	// Default: observability.NewServer
	NewObservabilityServer func(cfg observability.Config) ObservabilityServer

	// Stdin supplies passwords when no --password flag is given.
	// Default: os.Stdin
	Stdin io.Reader
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.LoadConfig == nil {
		out.LoadConfig = config.Load
	}
	if out.NewApp == nil {
		out.NewApp = newApp
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.NewObservabilityServer == nil {
		out.NewObservabilityServer = func(cfg observability.Config) ObservabilityServer {
			return observability.NewServer(cfg)
		}
	}
	if out.Stdin == nil {
		out.Stdin = os.Stdin
	}
	return &out
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]store.Migration, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// App is the wired account core a command runs against.
type App struct {
	Service *account.Service
	Tasks   task.Repository
	// Notifier is started by newApp and flushed by Close. It may be nil.
	Notifier *notify.Dispatcher
	// Ready reports whether the backing stores answer.
	Ready observability.ReadinessChecker

	closers []func(ctx context.Context) error
}

// OnClose registers fn to run when the App closes. Closers run in reverse
// registration order.
func (a *App) OnClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close flushes notifications and releases every resource.
func (a *App) Close(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, closeTimeout)
		defer cancel()
	}
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newApp connects to PostgreSQL and builds the account service over it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	app = &App{}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout.Std())
	defer cancel()
	pool, err := store.Connect(connectCtx, store.ConnectConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		Retries:  cfg.Database.ConnectRetries,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	app.OnClose(func(context.Context) error {
		pool.Close()
		return nil
	})
	app.Ready = func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return oops.Code("DB_PING_FAILED").Wrap(err)
		}
		return nil
	}

	locks, err := newLocker(ctx, app, cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	hasher, err := account.NewPasswordHasher(cfg.Hasher.Account())
	if err != nil {
		return nil, err
	}
	credentials, err := account.NewCredentialStore(
		accountpg.NewUserRepository(pool), hasher, locks, store.NewTransactor(pool),
		account.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	tokens, err := account.NewSessionTokenManager(credentials, cfg.Auth.Account())
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(app, cfg, logger)
	if err != nil {
		return nil, err
	}

	tasks := taskpg.NewTaskRepository(pool)
	deletion, err := account.NewCascadeDeletionCoordinator(credentials, tasks, dispatcher)
	if err != nil {
		return nil, err
	}
	avatars, err := account.NewAvatarPipeline(credentials, cfg.Avatar.Account())
	if err != nil {
		return nil, err
	}
	service, err := account.NewService(account.ServiceConfig{
		Credentials: credentials,
		Tokens:      tokens,
		Deletion:    deletion,
		Avatars:     avatars,
		Notifier:    dispatcher,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	app.Service = service
	app.Tasks = tasks
	app.Notifier = dispatcher
	return app, nil
}

func newLocker(ctx context.Context, app *App, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (account.Locker, error) {
	switch cfg.Locks.Backend {
	case config.LocksMemory:
		return account.NewKeyedLocker(), nil
	case config.LocksRedis:
		client, err := redislock.NewClient(ctx, cfg.Locks.RedisURL)
		if err != nil {
			return nil, err
		}
		app.OnClose(func(context.Context) error { return client.Close() })
		return redislock.New(client, redislock.Config{
			Lease:  cfg.Locks.Lease.Std(),
			Logger: logger,
		}), nil
	default:
		return accountpg.NewAdvisoryLocker(pool), nil
	}
}

// newDispatcher starts notification delivery. A bolt queue held by another
// process (normally a running serve) falls back to an in-memory queue that
// Close flushes.
func newDispatcher(app *App, cfg *config.Config, logger *slog.Logger) (*notify.Dispatcher, error) {
	var sender notify.Sender
	switch cfg.Notify.Sender {
	case config.SenderWebhook:
		webhook, err := notify.NewWebhookSender(cfg.Notify.WebhookURL, 0)
		if err != nil {
			return nil, err
		}
		sender = webhook
	default:
		sender = notify.NewLogSender(logger)
	}

	var queue notify.Queue = notify.NewMemoryQueue()
	if cfg.Notify.Queue == config.QueueBolt {
		bq, err := notify.OpenBoltQueue(cfg.Notify.BoltPath, "")
		switch {
		case err == nil:
			queue = bq
		case errors.Is(err, bolt.ErrTimeout):
			logger.Warn("notification queue is locked by another process, delivering in-process",
				"path", cfg.Notify.BoltPath)
		default:
			return nil, err
		}
	}
	app.OnClose(func(context.Context) error { return queue.Close() })

	dispatcher, err := notify.NewDispatcher(notify.Config{
		Queue:         queue,
		Sender:        sender,
		From:          cfg.Notify.From,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		DrainInterval: cfg.Notify.DrainInterval.Std(),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	dispatcher.Start()
	app.OnClose(dispatcher.Close)
	return dispatcher, nil
}
