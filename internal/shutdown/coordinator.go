// Package shutdown coordinates cooperative teardown of the agent process.
//
// A single Coordinator is owned by the host context. Components observe
// the shutdown signal through Done or Context; the first Signal call wins
// and records the reason. Unload notification is separate: it fires when
// the hosting runtime itself is being torn down, not when shutdown was
// requested.
package shutdown

import (
	"context"
	"sync"
	"time"
)

// Reason records why shutdown was requested.
type Reason int

const (
	// ReasonUserCancelled means an interactive user interrupted the agent.
	ReasonUserCancelled Reason = iota

	// ReasonOperatorShutdown means the service manager or an operator
	// stopped the agent.
	ReasonOperatorShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonUserCancelled:
		return "UserCancelled"
	case ReasonOperatorShutdown:
		return "OperatorShutdown"
	default:
		return "Unknown"
	}
}

// Coordinator is the process shutdown signal plus unload notification.
// The zero value is not usable; construct with NewCoordinator.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	fired  bool
	reason Reason
	unload []func()

	closeOnce sync.Once
}

// NewCoordinator creates a running coordinator.
func NewCoordinator() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Signal requests shutdown. The first call records the reason and fires
// the cancellation; later calls are accepted but do not change the reason.
// Cancellation is visible from any goroutine once Signal returns.
func (c *Coordinator) Signal(reason Reason) {
	c.mu.Lock()
	if !c.fired {
		c.fired = true
		c.reason = reason
	}
	c.mu.Unlock()
	c.cancel()
}

// ShuttingDown reports whether Signal has been called.
func (c *Coordinator) ShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Reason returns the recorded shutdown reason. Only meaningful once
// ShuttingDown reports true.
func (c *Coordinator) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done returns a channel closed when shutdown is signalled.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Context returns a context cancelled when shutdown is signalled.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Delay blocks until d elapses, returning nil, or until ctx or the
// shutdown signal fires, returning the corresponding context error.
// Cancellation unblocks immediately.
func (c *Coordinator) Delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// OnUnload registers a listener for runtime unload. Any number of
// listeners may subscribe.
func (c *Coordinator) OnUnload(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unload = append(c.unload, fn)
}

// NotifyUnload runs every unload listener. A panicking listener does not
// prevent the rest from running.
func (c *Coordinator) NotifyUnload() {
	c.mu.Lock()
	listeners := make([]func(), len(c.unload))
	copy(listeners, c.unload)
	c.mu.Unlock()

	for _, fn := range listeners {
		runListener(fn)
	}
}

func runListener(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// Close releases the underlying cancellation resource. Idempotent and
// safe to call concurrently with Signal.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
	})
}
