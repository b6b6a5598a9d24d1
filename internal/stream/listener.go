package stream

import (
	"errors"
	"sync"
)

// ErrSubscriptionLost reports that the bus closed the event channel without
// the subscriber asking for it. The loop cannot refresh anymore; whether to
// resubscribe is the caller's call.
var ErrSubscriptionLost = errors.New("stream: subscription lost")

// Listen attaches a snapshot loop to the bus. The bus subscription opens
// before the initial synchronous refresh, so an event published while the
// first snapshot is being read stays queued and forces a follow-up refresh
// instead of being lost. The initial refresh's failure aborts the
// subscription; after setup, each matching event triggers one refresh, with
// events arriving mid-refresh coalesced into a single follow-up. Refresh
// failures go to onError and the loop keeps running with the subscriber's
// last-known-good snapshot intact. An unexpected channel closure also goes
// to onError, as ErrSubscriptionLost.
func Listen(bus Bus, match func(Event) bool, refresh func() error, onError func(error)) (func(), error) {
	events, cancel := bus.Subscribe()

	if err := refresh(); err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					// Closed by cancel is a normal stop; anything else
					// means the bus died under us.
					select {
					case <-done:
					default:
						if onError != nil {
							onError(ErrSubscriptionLost)
						}
					}
					return
				}
				if !match(ev) {
					continue
				}
				drain(events)
				if err := refresh(); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	return stop, nil
}

// drain discards queued events; the refresh that follows reads current
// state, so every drained event is already covered.
func drain(events <-chan Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
