// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/strait/pkg/logging"
)

// Dispatcher defaults.
const (
	DefaultQueueSize     = 256
	DefaultMaxRetries    = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
	DefaultSendTimeout   = 10 * time.Second
	DefaultRatePerSecond = 5.0
	DefaultBurst         = 10
)

// DispatcherConfig configures the asynchronous dispatcher. Zero values
// take the package defaults.
type DispatcherConfig struct {
	// QueueSize bounds the in-flight queue; a full queue drops new
	// notifications rather than blocking the caller.
	QueueSize int

	// MaxRetries is how many times a failed delivery is retried.
	MaxRetries int

	// RetryBackoff is the initial retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration

	// RatePerSecond throttles outbound deliveries.
	RatePerSecond float64

	// Burst is the throttle burst size.
	Burst int

	// Logger is optional; nil falls back to the process default.
	Logger *logging.Logger
}

func (c *DispatcherConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

// DispatcherStats is a point-in-time snapshot of dispatcher counters.
type DispatcherStats struct {
	Queued    int
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Dispatcher queues notifications and delivers them asynchronously
// through an underlying sender.
//
// # Description
//
// Notify never blocks the caller: notifications go onto a bounded
// queue and a worker drains it under a token-bucket rate limit,
// retrying failed deliveries with exponential backoff. A full queue
// drops the notification and returns ErrQueueFull; the engine treats
// dropped notifications as delivery failures that must not affect the
// governance decision they announce.
//
// # Thread Safety
//
// Safe for concurrent use.
//
// # Example
//
//	d := notify.NewDispatcher(sender, notify.DispatcherConfig{})
//	d.Start(ctx)
//	defer d.Close()
//	_ = d.Notify(ctx, notify.Notification{Team: "payments", Type: notify.TypeSchemaChange})
type Dispatcher struct {
	sender  Notifier
	cfg     DispatcherConfig
	queue   chan Notification
	limiter *rate.Limiter
	log     *logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher over the given sender.
func NewDispatcher(sender Notifier, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		queue:   make(chan Notification, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:     cfg.Logger,
	}
}

// Start launches the delivery worker. The worker runs until the context
// is canceled or Close is called; Close drains what is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case n, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, n)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Notify implements Notifier by enqueueing for asynchronous delivery.
// Returns ErrQueueFull or ErrDispatcherClosed without blocking.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		d.dropped.Add(1)
		d.log.Warn("notification dropped, queue full",
			"team", n.Team,
			"type", n.Type)
		return ErrQueueFull
	}
}

// deliver sends one notification with rate limiting and retries.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.failed.Add(1)
		return
	}

	backoff := d.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				d.failed.Add(1)
				return
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := d.sender.Notify(attemptCtx, n)
		cancel()
		if err == nil {
			d.delivered.Add(1)
			d.log.Debug("notification delivered",
				"id", n.ID,
				"team", n.Team,
				"type", n.Type,
				"attempt", attempt+1)
			return
		}
		lastErr = err
	}

	d.failed.Add(1)
	d.log.Warn("notification delivery failed",
		"id", n.ID,
		"team", n.Team,
		"type", n.Type,
		"attempts", d.cfg.MaxRetries+1,
		"error", lastErr)
}

// Close stops accepting notifications, drains the queue, and waits for
// the worker to finish. Safe to call once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns current dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:    len(d.queue),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

var _ Notifier = (*Dispatcher)(nil)
