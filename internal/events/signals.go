package events

import (
	"context"
	"sync"
)

// Signal is an operator request delivered to a running session
type Signal int

const (
	SignalAbort Signal = iota + 1
	SignalShowPosition
	SignalCopyPosition
	SignalQuit
)

func (s Signal) String() string {
	switch s {
	case SignalAbort:
		return "abort"
	case SignalShowPosition:
		return "show-position"
	case SignalCopyPosition:
		return "copy-position"
	case SignalQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Controller dispatches signals from a channel to registered handlers.
// Handlers run on the controller goroutine in registration order.
type Controller struct {
	handlers map[Signal][]func()
	mu       sync.RWMutex
}

// NewController creates a controller with no handlers
func NewController() *Controller {
	return &Controller{handlers: make(map[Signal][]func())}
}

// Handle registers fn for sig
func (c *Controller) Handle(sig Signal, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[sig] = append(c.handlers[sig], fn)
}

// Dispatch runs the handlers for one signal
func (c *Controller) Dispatch(sig Signal) {
	c.mu.RLock()
	handlers := append([]func(){}, c.handlers[sig]...)
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

// Run consumes signals until ctx is done, the channel closes or SignalQuit
// has been dispatched
func (c *Controller) Run(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.Dispatch(sig)
			if sig == SignalQuit {
				return
			}
		}
	}
}
