// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

// Dispatcher defaults.
const (
	DefaultMaxAttempts   = 5
	DefaultBackoff       = 500 * time.Millisecond
	DefaultDrainInterval = 30 * time.Second
)

// Config holds Dispatcher dependencies and limits.
type Config struct {
	Queue  Queue
	Sender Sender
	// From is the sender address stamped on every message.
	From string
	// MaxAttempts is the number of delivery attempts before a message is dropped.
	MaxAttempts int
	// Backoff is the base delay of the exponential retry backoff.
	Backoff time.Duration
	// DrainInterval is how often the queue is checked for messages left by
	// earlier runs or failed drains.
	DrainInterval time.Duration
	BatchSize     int
	Logger        *slog.Logger
	Now           func() time.Time
}

// Dispatcher is an account.Notifier that queues messages and delivers them
// from a single background worker.
type Dispatcher struct {
	queue       Queue
	sender      Sender
	from        string
	maxAttempts int
	backoff     time.Duration
	batchSize   int
	logger      *slog.Logger
	now         func() time.Time
	cron        *cron.Cron

	kick chan struct{}
	stop chan struct{}
	done chan struct{}

	// workCtx is cancelled when Close gives up waiting for the worker.
	workCtx    context.Context
	workCancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
}

// NewDispatcher creates a Dispatcher. Call Start to begin delivering.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Queue == nil {
		return nil, oops.Errorf("queue is required")
	}
	if cfg.Sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	workCtx, workCancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:       cfg.Queue,
		sender:      cfg.Sender,
		from:        cfg.From,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		batchSize:   cfg.BatchSize,
		logger:      cfg.Logger,
		now:         cfg.Now,
		cron:        cron.New(cron.WithSeconds()),
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		workCtx:     workCtx,
		workCancel:  workCancel,
	}
	if _, err := d.cron.AddFunc("@every "+cfg.DrainInterval.String(), d.Kick); err != nil {
		workCancel()
		return nil, oops.Code("NOTIFY_SCHEDULE_INVALID").
			With("drain_interval", cfg.DrainInterval.String()).
			Wrap(err)
	}
	return d, nil
}

// Start launches the worker and the drain schedule, then kicks the worker
// once so messages left by earlier runs are delivered.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.run()
		d.cron.Start()
		d.Kick()
		d.logger.Info("notification dispatcher started")
	})
}

// Kick wakes the worker without blocking.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// NotifyWelcome queues a welcome message.
func (d *Dispatcher) NotifyWelcome(ctx context.Context, email, name string) {
	d.enqueue(ctx, KindWelcome, email, name)
}

// NotifyDeletion queues an account deletion message.
func (d *Dispatcher) NotifyDeletion(ctx context.Context, email, name string) {
	d.enqueue(ctx, KindDeletion, email, name)
}

func (d *Dispatcher) enqueue(ctx context.Context, kind Kind, email, name string) {
	m := NewMessage(kind, email, name, d.from, d.now())
	if err := d.queue.Enqueue(m); err != nil {
		Notifications.WithLabelValues(string(kind), OutcomeEnqueueFailed).Inc()
		errutil.LogErrorContext(ctx, d.logger, "notification not queued", err,
			"kind", string(kind))
		return
	}
	d.recordDepth()
	d.Kick()
}

// Drain delivers queued messages until the queue is empty or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	defer d.recordDepth()
	for {
		batch, err := d.queue.Batch(d.batchSize)
		if err != nil {
			return oops.Code("NOTIFY_DRAIN_FAILED").Wrap(err)
		}
		if len(batch) == 0 {
			return nil
		}
		for _, m := range batch {
			if err := ctx.Err(); err != nil {
				return oops.Code("NOTIFY_DRAIN_ABORTED").Wrap(err)
			}
			if err := d.deliver(ctx, m); err != nil {
				return err
			}
		}
	}
}

// Close stops the schedule, lets the worker deliver what is queued, and
// waits for it to exit. If ctx ends first the worker is cancelled and the
// remaining messages stay queued.
func (d *Dispatcher) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		defer d.workCancel()
		if !d.started.Load() {
			return
		}
		cronDone := d.cron.Stop()
		close(d.stop)

		select {
		case <-d.done:
		case <-ctx.Done():
			d.workCancel()
			<-d.done
			err = oops.Code("NOTIFY_CLOSE_TIMEOUT").Wrap(ctx.Err())
		}
		<-cronDone.Done()
		d.logger.Info("notification dispatcher stopped")
	})
	return err
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			d.drainLogged()
			return
		case <-d.kick:
			d.drainLogged()
		}
	}
}

func (d *Dispatcher) drainLogged() {
	if err := d.Drain(d.workCtx); err != nil && d.workCtx.Err() == nil {
		errutil.LogError(d.logger, "notification drain failed", err)
	}
}

// deliver sends m with retries and removes it from the queue once it is
// sent or has used up its attempts. A non-nil error means the queue could
// not be updated or ctx ended.
func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	remaining := d.maxAttempts - m.Attempts
	if remaining <= 0 {
		return d.drop(ctx, m, oops.Code("NOTIFY_ATTEMPTS_EXHAUSTED").Errorf("no delivery attempts left"))
	}

	b := retry.WithMaxRetries(uint64(remaining-1), //nolint:gosec // remaining is positive
		retry.WithJitterPercent(10, retry.NewExponential(d.backoff)))
	sendErr := retry.Do(ctx, b, func(ctx context.Context) error {
		m.Attempts++
		err := d.sender.Send(ctx, m)
		if err == nil || errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			return err
		}
		d.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("id", m.ID.String()),
			slog.Int("attempt", m.Attempts),
			slog.Any("error", err))
		return retry.RetryableError(err)
	})

	switch {
	case sendErr == nil:
		if err := d.queue.Remove(m.ID); err != nil {
			return oops.Code("NOTIFY_DRAIN_FAILED").Wrap(err)
		}
		Notifications.WithLabelValues(string(m.Kind), OutcomeSent).Inc()
		d.logger.DebugContext(ctx, "notification sent",
			slog.String("id", m.ID.String()),
			slog.String("kind", string(m.Kind)))
		return nil
	case ctx.Err() != nil:
		// Keep the attempts used so far for the next run.
		if err := d.queue.Update(m); err != nil {
			d.logger.Warn("notification attempts not saved", slog.Any("error", err))
		}
		return oops.Code("NOTIFY_DRAIN_ABORTED").Wrap(ctx.Err())
	default:
		return d.drop(ctx, m, sendErr)
	}
}

func (d *Dispatcher) drop(ctx context.Context, m Message, cause error) error {
	if err := d.queue.Remove(m.ID); err != nil {
		return oops.Code("NOTIFY_DRAIN_FAILED").Wrap(err)
	}
	Notifications.WithLabelValues(string(m.Kind), OutcomeDropped).Inc()
	errutil.LogErrorContext(ctx, d.logger, "notification dropped", cause,
		"id", m.ID.String(),
		"kind", string(m.Kind),
		"attempts", m.Attempts)
	return nil
}

func (d *Dispatcher) recordDepth() {
	if n, err := d.queue.Size(); err == nil {
		QueueDepth.Set(float64(n))
	}
}

var _ account.Notifier = (*Dispatcher)(nil)
