package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Stop()

	got := make(chan Event, 1)
	bus.Subscribe(EventTypeSearchMatched, func(e Event) { got <- e })

	bus.Publish(NewSearchMatchedEvent("run-1", "accept_green", 2, 100, 200, 0.93))

	ev := waitFor(t, got)
	if ev.Type != EventTypeSearchMatched {
		t.Errorf("unexpected type %s", ev.Type)
	}
	if ev.Data["monitor"] != 2 || ev.Data["template"] != "accept_green" {
		t.Errorf("unexpected data %v", ev.Data)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Stop()

	id := bus.Subscribe(EventTypeSearchExpired, func(Event) {})
	if bus.GetSubscriberCount(EventTypeSearchExpired) != 1 {
		t.Fatal("expected one subscriber")
	}
	bus.Unsubscribe(id)
	if bus.GetSubscriberCount(EventTypeSearchExpired) != 0 {
		t.Error("subscriber not removed")
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewEventBus(10)

	var mu sync.Mutex
	var seen []EventType
	id := bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})
	for _, et := range AllEventTypes {
		if bus.GetSubscriberCount(et) != 1 {
			t.Errorf("missing subscription for %s", et)
		}
	}

	bus.Publish(NewSearchStartedEvent("run-1", 1, 1, 0.85))
	bus.Publish(NewSearchIterationEvent("run-1", 1, 0.2, 1, 0))
	bus.Publish(NewSearchExpiredEvent("run-1", 0.2, 1, time.Second))
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventTypeSearchStarted, EventTypeSearchIteration, EventTypeSearchExpired}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("expected %v, got %v", want, seen)
			break
		}
	}

	bus.Unsubscribe(id)
	if bus.GetSubscriberCount(EventTypeError) != 0 {
		t.Error("stopped bus should have no subscribers")
	}
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Stop()

	errs := make(chan error, 1)
	bus.OnError(func(err error) { errs <- err })
	bus.Subscribe(EventTypeError, func(Event) { panic("boom") })

	bus.Publish(NewErrorEvent("test", "bus", errors.New("x"), nil))

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected panic report")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestBusPreservesOrderPerSubscriber(t *testing.T) {
	bus := NewEventBus(64)

	var mu sync.Mutex
	var seen []int
	bus.Subscribe(EventTypeSearchIteration, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Data["iteration"].(int))
		mu.Unlock()
	})

	for i := 1; i <= 50; i++ {
		bus.Publish(NewSearchIterationEvent("run-1", i, 0.5, 1, 0))
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 50 {
		t.Fatalf("expected 50 events drained on stop, got %d", len(seen))
	}
	for i, n := range seen {
		if n != i+1 {
			t.Fatalf("event %d delivered out of order: %v", i, seen)
		}
	}
}

func TestBusDropsForLaggingSubscriber(t *testing.T) {
	bus := NewEventBus(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Subscribe(EventTypeSearchIteration, func(Event) {
		once.Do(func() { close(started) })
		<-release
	})

	var mu sync.Mutex
	var dropped int
	bus.OnError(func(error) {
		mu.Lock()
		dropped++
		mu.Unlock()
	})

	bus.Publish(NewSearchIterationEvent("run-1", 1, 0, 1, 0))
	<-started
	bus.Publish(NewSearchIterationEvent("run-1", 2, 0, 1, 0))
	bus.Publish(NewSearchIterationEvent("run-1", 3, 0, 1, 0))

	if bus.GetPendingCount() != 1 {
		t.Errorf("expected one pending event, got %d", bus.GetPendingCount())
	}
	close(release)
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	if dropped != 1 {
		t.Errorf("expected one dropped event, got %d", dropped)
	}
}

func TestBusDropsAfterStop(t *testing.T) {
	bus := NewEventBus(1)

	var mu sync.Mutex
	var dropped []error
	bus.OnError(func(err error) {
		mu.Lock()
		dropped = append(dropped, err)
		mu.Unlock()
	})

	bus.Stop()
	bus.Stop()
	bus.Publish(NewSearchAbortedEvent("run-2", 3))

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 {
		t.Errorf("expected one dropped event report, got %d", len(dropped))
	}
}

func TestErrorEventMergesMetadata(t *testing.T) {
	ev := NewErrorEvent("acquire", "capture", errors.New("grab failed"), map[string]interface{}{"monitor": 1})
	if ev.Data["error"] != "grab failed" || ev.Data["monitor"] != 1 {
		t.Errorf("unexpected data %v", ev.Data)
	}
}

func TestControllerDispatchesInOrder(t *testing.T) {
	c := NewController()
	var calls []string
	c.Handle(SignalAbort, func() { calls = append(calls, "abort-1") })
	c.Handle(SignalAbort, func() { calls = append(calls, "abort-2") })
	c.Handle(SignalShowPosition, func() { calls = append(calls, "show") })
	c.Handle(SignalQuit, func() { calls = append(calls, "quit") })

	signals := make(chan Signal, 5)
	signals <- SignalShowPosition
	signals <- SignalAbort
	signals <- SignalQuit
	signals <- SignalAbort

	c.Run(context.Background(), signals)

	want := []string{"show", "abort-1", "abort-2", "quit"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestControllerStopsOnContextAndClose(t *testing.T) {
	c := NewController()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx, make(chan Signal))

	signals := make(chan Signal)
	close(signals)
	c.Run(context.Background(), signals)
}

func TestSignalString(t *testing.T) {
	if SignalCopyPosition.String() != "copy-position" {
		t.Errorf("unexpected name %s", SignalCopyPosition)
	}
	if Signal(99).String() != "unknown" {
		t.Error("unknown signal should be named unknown")
	}
}
