package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"jordanella.com/autoclick-go/internal/events"
)

// EventLogger appends every bus event to a daily JSON-lines file.
// Runs on the same day share a file; events keep their publish order.
type EventLogger struct {
	bus  events.EventBus
	sub  events.SubscriptionID
	path string

	mu         sync.Mutex
	file       *os.File
	logger     *Logger
	iterations bool
	written    int
}

// EventLoggerOption configures an EventLogger
type EventLoggerOption func(*EventLogger)

// WithoutIterations skips search.iteration events, which dominate long searches
func WithoutIterations() EventLoggerOption {
	return func(el *EventLogger) { el.iterations = false }
}

// EventLogPath is the file used for events logged at t
func EventLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, "events_"+t.Format("2006-01-02")+".log")
}

// NewEventLogger opens today's event file under dir and subscribes to bus
func NewEventLogger(bus events.EventBus, dir string, opts ...EventLoggerOption) (*EventLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	path := EventLogPath(dir, time.Now())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	el := &EventLogger{
		bus:        bus,
		path:       path,
		file:       f,
		logger:     NewLogger("events").SetFormat(FormatJSON).SetOutput(f),
		iterations: true,
	}
	for _, opt := range opts {
		opt(el)
	}
	el.sub = bus.SubscribeAll(el.write)
	return el, nil
}

func (el *EventLogger) write(event events.Event) {
	if event.Type == events.EventTypeSearchIteration && !el.iterations {
		return
	}

	fields := make(map[string]interface{}, len(event.Data)+2)
	for k, v := range event.Data {
		fields[k] = v
	}
	fields["event"] = string(event.Type)
	fields["source"] = event.Source

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	switch event.Type {
	case events.EventTypeError, events.EventTypeActionFailed, events.EventTypeSearchExpired:
		el.logger.WarnWithContext(string(event.Type), fields)
	default:
		el.logger.InfoWithContext(string(event.Type), fields)
	}
	el.written++
}

// Path returns the log file location
func (el *EventLogger) Path() string {
	return el.path
}

// Written counts events appended so far
func (el *EventLogger) Written() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.written
}

// Close unsubscribes and closes the file; events still queued are discarded
func (el *EventLogger) Close() error {
	el.bus.Unsubscribe(el.sub)

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return nil
	}
	err := el.file.Close()
	el.file = nil
	return err
}
