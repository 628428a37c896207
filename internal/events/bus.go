package events

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// subscription owns one mailbox; its handler sees events in publish order.
// A nil types set matches every event.
type subscription struct {
	id      SubscriptionID
	types   map[EventType]bool
	handler EventHandler
	inbox   chan Event
}

func (s *subscription) matches(t EventType) bool {
	return s.types == nil || s.types[t]
}

// DefaultEventBus fans events out to per-subscriber mailboxes.
// Publish never blocks: a full mailbox drops the event and reports it,
// so a slow log writer cannot stall a running search.
type DefaultEventBus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	nextSubID   SubscriptionID
	stopped     bool
	onError     func(error)

	bufferSize int
	wg         sync.WaitGroup
}

// NewEventBus creates a bus whose mailboxes hold bufferSize events each
func NewEventBus(bufferSize int) *DefaultEventBus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &DefaultEventBus{
		nextSubID:  1,
		bufferSize: bufferSize,
		onError: func(err error) {
			fmt.Fprintf(os.Stderr, "[EventBus] %v\n", err)
		},
	}
}

// Subscribe registers a handler for a specific event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	return eb.subscribe(map[EventType]bool{eventType: true}, handler)
}

// SubscribeAll registers one handler for every event type, in publish order
func (eb *DefaultEventBus) SubscribeAll(handler EventHandler) SubscriptionID {
	return eb.subscribe(nil, handler)
}

func (eb *DefaultEventBus) subscribe(types map[EventType]bool, handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscription{
		id:      eb.nextSubID,
		types:   types,
		handler: handler,
		inbox:   make(chan Event, eb.bufferSize),
	}
	eb.nextSubID++
	if eb.stopped {
		close(sub.inbox)
		return sub.id
	}

	eb.subscribers = append(eb.subscribers, sub)
	eb.wg.Add(1)
	go eb.deliver(sub)
	return sub.id
}

// OnError replaces the sink for dropped events and handler panics
func (eb *DefaultEventBus) OnError(fn func(error)) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.onError = fn
}

func (eb *DefaultEventBus) reportError(err error) {
	eb.mu.RLock()
	fn := eb.onError
	eb.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Unsubscribe removes a subscription; events already queued are still delivered
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, sub := range eb.subscribers {
		if sub.id == id {
			eb.subscribers = append(eb.subscribers[:i:i], eb.subscribers[i+1:]...)
			close(sub.inbox)
			return
		}
	}
}

// Publish queues event for every subscriber of its type
func (eb *DefaultEventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var errs []error
	eb.mu.RLock()
	if eb.stopped {
		errs = append(errs, fmt.Errorf("dropped event (bus stopped): %v", event.Type))
	} else {
		for _, sub := range eb.subscribers {
			if !sub.matches(event.Type) {
				continue
			}
			select {
			case sub.inbox <- event:
			default:
				errs = append(errs, fmt.Errorf("dropped event %v: subscriber %d is %d events behind", event.Type, sub.id, cap(sub.inbox)))
			}
		}
	}
	eb.mu.RUnlock()

	for _, err := range errs {
		eb.reportError(err)
	}
}

// Stop closes every mailbox and waits for queued events to be handled
func (eb *DefaultEventBus) Stop() {
	eb.mu.Lock()
	if !eb.stopped {
		eb.stopped = true
		for _, sub := range eb.subscribers {
			close(sub.inbox)
		}
		eb.subscribers = nil
	}
	eb.mu.Unlock()
	eb.wg.Wait()
}

func (eb *DefaultEventBus) deliver(sub *subscription) {
	defer eb.wg.Done()
	for event := range sub.inbox {
		eb.safeHandlerCall(sub.handler, event)
	}
}

// safeHandlerCall calls a handler with panic recovery
func (eb *DefaultEventBus) safeHandlerCall(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.reportError(fmt.Errorf("handler panic for event %v: %v", event.Type, r))
		}
	}()

	handler(event)
}

// GetSubscriberCount returns the number of subscribers for an event type
func (eb *DefaultEventBus) GetSubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := 0
	for _, sub := range eb.subscribers {
		if sub.matches(eventType) {
			n++
		}
	}
	return n
}

// GetPendingCount returns how many events wait in all mailboxes
func (eb *DefaultEventBus) GetPendingCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := 0
	for _, sub := range eb.subscribers {
		n += len(sub.inbox)
	}
	return n
}
