package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// AMQPPusher publishes push messages to a RabbitMQ work queue.
type AMQPPusher struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

var _ Pusher = (*AMQPPusher)(nil)

func NewAMQPPusher(url string) (*AMQPPusher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	p := &AMQPPusher{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *AMQPPusher) Push(ctx context.Context, msg Message) error {
	if p == nil {
		return fmt.Errorf("pusher is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid push message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    msg.DeliveryID,
		Body:         payload,
	}

	if err := ch.PublishWithContext(ctx, "", PushQueueName, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish push message: %w", err)
	}

	return nil
}

func (p *AMQPPusher) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (p *AMQPPusher) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := p.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		p.mu.RLock()
		conn = p.conn
		p.mu.RUnlock()

		ch, err = conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if _, err := ch.QueueDeclare(PushQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", PushQueueName, err)
	}

	return ch, nil
}

func (p *AMQPPusher) ensureConnected(ctx context.Context) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return p.reconnectWithBackoff(ctx)
}

func (p *AMQPPusher) reconnectWithBackoff(ctx context.Context) error {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	backoff := reconnectBackoff
	for {
		conn, err := amqp.Dial(p.url)
		if err == nil {
			p.mu.Lock()
			p.conn = conn
			p.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
