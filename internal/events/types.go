package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Search lifecycle events
	EventTypeSearchStarted   EventType = "search.started"
	EventTypeSearchIteration EventType = "search.iteration"
	EventTypeSearchMatched   EventType = "search.matched"
	EventTypeSearchExpired   EventType = "search.expired"
	EventTypeSearchAborted   EventType = "search.aborted"

	// Action events
	EventTypeActionFailed EventType = "action.failed"

	// Error events
	EventTypeError EventType = "error"
)

// AllEventTypes lists every event type the loop can emit
var AllEventTypes = []EventType{
	EventTypeSearchStarted,
	EventTypeSearchIteration,
	EventTypeSearchMatched,
	EventTypeSearchExpired,
	EventTypeSearchAborted,
	EventTypeActionFailed,
	EventTypeError,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "acquire")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// SubscribeAll registers one handler for every event type
	SubscribeAll(handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish queues an event for its subscribers without blocking
	Publish(event Event)

	// Stop stops the event bus and drains queued events
	Stop()
}

const sourceAcquire = "acquire"

// NewSearchStartedEvent creates a search started event
func NewSearchStartedEvent(runID string, templates, monitors int, threshold float64) Event {
	return Event{
		Type:      EventTypeSearchStarted,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":    runID,
			"templates": templates,
			"monitors":  monitors,
			"threshold": threshold,
		},
	}
}

// NewSearchIterationEvent creates an iteration completed event
func NewSearchIterationEvent(runID string, number int, bestScore float64, captured, failures int) Event {
	return Event{
		Type:      EventTypeSearchIteration,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":           runID,
			"iteration":        number,
			"best_score":       bestScore,
			"captured":         captured,
			"capture_failures": failures,
		},
	}
}

// NewSearchMatchedEvent creates a target acquired event
func NewSearchMatchedEvent(runID, template string, monitor, x, y int, score float64) Event {
	return Event{
		Type:      EventTypeSearchMatched,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":   runID,
			"template": template,
			"monitor":  monitor,
			"x":        x,
			"y":        y,
			"score":    score,
		},
	}
}

// NewSearchExpiredEvent creates a timeout event
func NewSearchExpiredEvent(runID string, bestScore float64, iterations int, elapsed time.Duration) Event {
	return Event{
		Type:      EventTypeSearchExpired,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":     runID,
			"best_score": bestScore,
			"iterations": iterations,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	}
}

// NewSearchAbortedEvent creates a cancelled search event
func NewSearchAbortedEvent(runID string, iterations int) Event {
	return Event{
		Type:      EventTypeSearchAborted,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":     runID,
			"iterations": iterations,
		},
	}
}

// NewActionFailedEvent creates an input action failure event
func NewActionFailedEvent(runID string, err error) Event {
	return Event{
		Type:      EventTypeActionFailed,
		Source:    sourceAcquire,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		},
	}
}

// NewErrorEvent creates an error event
func NewErrorEvent(source, component string, err error, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"source":    source,
		"component": component,
		"error":     err.Error(),
	}

	// Merge metadata
	for k, v := range metadata {
		data[k] = v
	}

	return Event{
		Type:      EventTypeError,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
