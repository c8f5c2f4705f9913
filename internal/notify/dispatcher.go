// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
)

// Dispatcher defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 128
)

// Notification outcomes passed to Recorder.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Recorder counts notification outcomes per kind.
type Recorder interface {
	RecordNotification(kind, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}

// Config sizes a Dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds each delivery. Zero means DefaultSMTPTimeout.
	Timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// Dispatcher implements account.Notifier with a bounded queue drained by a
// fixed pool of workers.
type Dispatcher struct {
	sender   Sender
	renderer *Renderer
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder

	mu      sync.RWMutex
	stopped bool
	queue   chan account.Notification

	// base parents every delivery context; cancelled when Stop gives up.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(sender Sender, renderer *Renderer, cfg Config, opts ...Option) (*Dispatcher, error) {
	if sender == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("sender is required")
	}
	if renderer == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("renderer is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:   sender,
		renderer: renderer,
		timeout:  cfg.Timeout,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		queue:    make(chan account.Notification, cfg.QueueSize),
		base:     base,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	return d, nil
}

// Notify enqueues n without blocking. It fails with NOTIFY_QUEUE_FULL when
// the queue is at capacity and NOTIFY_STOPPED after Stop.
func (d *Dispatcher) Notify(_ context.Context, n account.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.recorder.RecordNotification(string(n.Kind), StatusDropped)
		return oops.Code("NOTIFY_STOPPED").With("kind", string(n.Kind)).Errorf("dispatcher stopped")
	}

	select {
	case d.queue <- n:
		return nil
	default:
		d.recorder.RecordNotification(string(n.Kind), StatusDropped)
		return oops.Code("NOTIFY_QUEUE_FULL").
			With("kind", string(n.Kind)).
			With("capacity", cap(d.queue)).
			Errorf("notification queue full")
	}
}

// Stop refuses new notifications and waits for queued ones to be delivered.
// If ctx expires first, in-flight deliveries are cancelled, the rest of the
// queue is dropped and the context error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return oops.Code("NOTIFY_STOP_TIMEOUT").With("operation", "drain notification queue").Wrap(ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		if d.base.Err() != nil {
			d.recorder.RecordNotification(string(n.Kind), StatusDropped)
			d.logger.Warn("notification dropped", "operation", "drain", "kind", string(n.Kind))
			continue
		}
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n account.Notification) {
	kind := string(n.Kind)

	msg, err := d.renderer.Render(n)
	if err != nil {
		d.recorder.RecordNotification(kind, StatusFailed)
		d.logger.Warn("notification not rendered", "operation", "render", "kind", kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(d.base, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.recorder.RecordNotification(kind, StatusFailed)
		d.logger.Warn("notification delivery failed", "operation", "send", "kind", kind, "error", err)
		return
	}
	d.recorder.RecordNotification(kind, StatusSent)
	d.logger.Debug("notification sent", "kind", kind)
}
