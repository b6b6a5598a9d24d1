package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	chA, cancelA := bus.Subscribe()
	defer cancelA()
	chB, cancelB := bus.Subscribe()
	defer cancelB()

	ev := Event{CampaignID: "c1", RecipientIDs: []string{"u1"}}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for name, ch := range map[string]<-chan Event{"a": chA, "b": chB} {
		select {
		case got := <-ch:
			if got.CampaignID != "c1" {
				t.Fatalf("subscriber %s got campaign %q, want c1", name, got.CampaignID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the event", name)
		}
	}
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	ch, cancel := bus.Subscribe()
	cancel()
	// Canceling twice must be safe.
	cancel()

	if err := bus.Publish(context.Background(), Event{CampaignID: "c1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestMemoryBusPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	// Nobody reads; publishing far past the buffer must still return.
	for i := 0; i < subscriberBuffer*4; i++ {
		if err := bus.Publish(context.Background(), Event{CampaignID: "c1"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
}

func TestEventTouchesRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		event     Event
		recipient string
		want      bool
	}{
		{name: "listed recipient", event: Event{RecipientIDs: []string{"u1", "u2"}}, recipient: "u2", want: true},
		{name: "unlisted recipient", event: Event{RecipientIDs: []string{"u1"}}, recipient: "u3", want: false},
		{name: "broadcast event touches everyone", event: Event{}, recipient: "u9", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.event.TouchesRecipient(tt.recipient); got != tt.want {
				t.Fatalf("TouchesRecipient(%s) = %v, want %v", tt.recipient, got, tt.want)
			}
		})
	}
}

func TestListenRefreshesOnMatchingEvents(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	var refreshes atomic.Int64
	stop, err := Listen(bus,
		func(ev Event) bool { return ev.TouchesRecipient("u1") },
		func() error {
			refreshes.Add(1)
			return nil
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer stop()

	if got := refreshes.Load(); got != 1 {
		t.Fatalf("initial refreshes = %d, want 1", got)
	}

	if err := bus.Publish(context.Background(), Event{RecipientIDs: []string{"u1"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return refreshes.Load() >= 2 })

	// An event for someone else must not trigger a refresh.
	if err := bus.Publish(context.Background(), Event{RecipientIDs: []string{"u2"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := refreshes.Load(); got != 2 {
		t.Fatalf("refreshes after foreign event = %d, want 2", got)
	}
}

// A mutation can land between the initial snapshot read and the first
// event delivery. The subscription must already be attached at that point,
// so the queued event forces a follow-up refresh instead of vanishing.
func TestListenSeesEventPublishedDuringInitialRefresh(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	var refreshes atomic.Int64
	stop, err := Listen(bus,
		func(Event) bool { return true },
		func() error {
			if refreshes.Add(1) == 1 {
				if err := bus.Publish(context.Background(), Event{RecipientIDs: []string{"u1"}}); err != nil {
					return err
				}
			}
			return nil
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer stop()

	waitFor(t, func() bool { return refreshes.Load() >= 2 })
}

func TestListenReportsLostSubscription(t *testing.T) {
	t.Parallel()

	events := make(chan Event)
	bus := &staticBus{events: events}

	var lost atomic.Int64
	stop, err := Listen(bus,
		func(Event) bool { return true },
		func() error { return nil },
		func(err error) {
			if errors.Is(err, ErrSubscriptionLost) {
				lost.Add(1)
			}
		},
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer stop()

	close(events)
	waitFor(t, func() bool { return lost.Load() == 1 })
}

func TestListenStopIsNotReportedAsLost(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	var failures atomic.Int64
	stop, err := Listen(bus,
		func(Event) bool { return true },
		func() error { return nil },
		func(error) { failures.Add(1) },
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	stop()
	time.Sleep(50 * time.Millisecond)
	if got := failures.Load(); got != 0 {
		t.Fatalf("onError calls after stop = %d, want 0", got)
	}
}

// staticBus hands out one fixed channel, letting a test close it from the
// outside to simulate a dying transport.
type staticBus struct {
	events chan Event
}

func (b *staticBus) Publish(context.Context, Event) error { return nil }

func (b *staticBus) Subscribe() (<-chan Event, func()) {
	return b.events, func() {}
}

func TestListenInitialRefreshFailureIsSynchronous(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	_, err := Listen(bus,
		func(Event) bool { return true },
		func() error { return context.DeadlineExceeded },
		nil,
	)
	if err == nil {
		t.Fatal("expected initial refresh failure to surface")
	}
}

func TestListenReportsRefreshErrorsAndKeepsRunning(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	var refreshes atomic.Int64
	var failures atomic.Int64
	stop, err := Listen(bus,
		func(Event) bool { return true },
		func() error {
			if refreshes.Add(1) == 2 {
				return context.DeadlineExceeded
			}
			return nil
		},
		func(error) { failures.Add(1) },
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer stop()

	if err := bus.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, func() bool { return failures.Load() == 1 })

	if err := bus.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, func() bool { return refreshes.Load() >= 3 })
}

func TestListenStopEndsRefreshes(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()

	var refreshes atomic.Int64
	stop, err := Listen(bus,
		func(Event) bool { return true },
		func() error {
			refreshes.Add(1)
			return nil
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	stop()
	stop() // stop must be idempotent

	before := refreshes.Load()
	if err := bus.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := refreshes.Load(); got != before {
		t.Fatalf("refreshes after stop = %d, want %d", got, before)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
