// Package stream carries change notifications from mutations to live
// subscriptions. Events are wakeups, not data: a subscriber that receives
// one recomputes its full snapshot from storage, so dropping an event while
// another is already queued loses nothing.
package stream

import (
	"context"
	"sync"
)

// Event announces that delivery records changed. An empty RecipientIDs
// slice means the change touches every view (e.g. an admin cascade delete
// resolved server-side).
type Event struct {
	CampaignID   string   `json:"campaignId,omitempty"`
	RecipientIDs []string `json:"recipientIds,omitempty"`
}

// TouchesRecipient reports whether a recipient's inbox must refresh.
func (e Event) TouchesRecipient(recipientID string) bool {
	if len(e.RecipientIDs) == 0 {
		return true
	}
	for _, id := range e.RecipientIDs {
		if id == recipientID {
			return true
		}
	}
	return false
}

// Bus is the change-notification transport. MemoryBus serves a single
// process; the Redis implementation in internal/infra/redis spans
// instances.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe() (<-chan Event, func())
}

const subscriberBuffer = 16

// MemoryBus is the in-process Bus. Publish never blocks: when a
// subscriber's buffer is full the event is dropped, which is safe because
// a full buffer guarantees a pending wakeup and therefore a fresher
// recompute than the dropped event could have produced.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan Event)}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}
