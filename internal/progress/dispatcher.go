// Package progress delivers pipeline status updates to a caller-supplied
// callback without letting a slow or failing callback hold up the pipeline.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/lettercheck/internal/models"
)

// StatusFunc receives status updates. Errors are logged and otherwise ignored.
type StatusFunc func(ctx context.Context, update models.StatusUpdate) error

type Config struct {
	Buffer      int
	CallTimeout time.Duration
	// TerminalGrace is how long Notify waits for room in the queue when the
	// update is complete or error.
	TerminalGrace time.Duration
}

// Dispatcher runs every callback on a single goroutine, in submission order.
type Dispatcher struct {
	fn     StatusFunc
	cfg    Config
	logger *slog.Logger

	queue chan models.StatusUpdate
	done  chan struct{}
	// ctx bounds every callback; Close cancels it when draining times out.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. A nil fn yields a dispatcher
// that drops everything.
func NewDispatcher(fn StatusFunc, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.TerminalGrace <= 0 {
		cfg.TerminalGrace = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		fn:     fn,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan models.StatusUpdate, cfg.Buffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go d.run()
	return d
}

// Notify enqueues an update and returns immediately. When the queue is full
// the update is dropped, except terminal updates which wait up to the grace
// period first.
func (d *Dispatcher) Notify(update models.StatusUpdate) {
	if d.fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("progress.notify_after_close", "state", update.State)
		return
	}

	select {
	case d.queue <- update:
		return
	default:
	}
	if update.State == models.StateComplete || update.State == models.StateError {
		timer := time.NewTimer(d.cfg.TerminalGrace)
		defer timer.Stop()
		select {
		case d.queue <- update:
			return
		case <-timer.C:
		}
	}
	d.logger.Warn("progress.update_dropped", "state", update.State, "progress", update.Progress)
}

// Close stops accepting updates and waits for queued ones to be delivered
// or for ctx to expire, whichever comes first. On expiry the in-flight
// callback's context is cancelled and the rest of the queue is dropped, so
// no update lands after Close returns.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer d.cancel()
	dropped := 0
	for update := range d.queue {
		if d.ctx.Err() != nil {
			dropped++
			continue
		}
		d.deliver(update)
	}
	if dropped > 0 {
		d.logger.Warn("progress.updates_abandoned", "count", dropped)
	}
}

func (d *Dispatcher) deliver(update models.StatusUpdate) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.CallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("status callback panicked: %v", r)
			}
		}()
		errCh <- d.fn(ctx, update)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			d.logger.Warn("progress.callback_failed", "state", update.State, "error", err)
		}
	case <-ctx.Done():
		if d.ctx.Err() != nil {
			d.logger.Warn("progress.callback_abandoned", "state", update.State)
			return
		}
		d.logger.Warn("progress.callback_timeout", "state", update.State,
			"timeout", d.cfg.CallTimeout.String())
	}
}
