package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulseline/broadcast-engine/internal/stream"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultEventChannel = "broadcast.deliveries.changed"
	defaultPingInterval = 30 * time.Second
)

// EventBus is the multi-instance stream.Bus: change events ride Redis
// pub/sub so that a mutation handled by one engine instance refreshes
// subscriptions held by every instance.
type EventBus struct {
	client       *goredis.Client
	channel      string
	logger       *zap.Logger
	pingInterval time.Duration
}

var _ stream.Bus = (*EventBus)(nil)

func NewEventBus(client *goredis.Client, logger *zap.Logger) (*EventBus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventBus{
		client:       client,
		channel:      defaultEventChannel,
		logger:       logger,
		pingInterval: defaultPingInterval,
	}, nil
}

func (b *EventBus) Publish(ctx context.Context, ev stream.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish stream event: %w", err)
	}
	return nil
}

// Subscribe attaches to the pub/sub channel. The returned channel closes
// when the subscription is canceled or when the pub/sub connection stops
// answering pings; listeners treat the latter as a lost subscription.
func (b *EventBus) Subscribe() (<-chan stream.Event, func()) {
	pubsub := b.client.Subscribe(context.Background(), b.channel)
	out := make(chan stream.Event, 16)

	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		ping := time.NewTicker(b.pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case <-ping.C:
				// go-redis reconnects the pub/sub connection on its own and
				// keeps the message channel open while it retries, so a dead
				// broker is only visible through a failing ping.
				if err := pubsub.Ping(context.Background()); err != nil {
					b.logger.Error("event bus pub/sub unreachable", zap.Error(err))
					return
				}
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var ev stream.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed stream event", zap.Error(err))
					continue
				}

				// Same non-blocking contract as the memory bus: a full
				// buffer already guarantees a pending refresh.
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel
}
