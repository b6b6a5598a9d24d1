// Package push forwards delivered notifications to the device push
// gateway. Delivery to the inbox never depends on it: publish failures
// are logged and dropped, the inbox row is the source of truth.
package push

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PushQueueName is the work queue the device gateway consumes from.
const PushQueueName = "push.notifications"

// Message is the payload handed to the push gateway for one recipient.
type Message struct {
	DeliveryID  string    `json:"deliveryId"`
	CampaignID  string    `json:"campaignId"`
	RecipientID string    `json:"recipientId"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Category    string    `json:"category"`
	SentAt      time.Time `json:"sentAt"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("delivery id is required")
	}
	if strings.TrimSpace(m.RecipientID) == "" {
		return fmt.Errorf("recipient id is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Pusher publishes push messages for freshly written deliveries.
type Pusher interface {
	Push(ctx context.Context, msg Message) error
	Close() error
}

// NoopPusher discards every message. Used when no push gateway is
// configured.
type NoopPusher struct{}

var _ Pusher = (*NoopPusher)(nil)

func (NoopPusher) Push(context.Context, Message) error { return nil }

func (NoopPusher) Close() error { return nil }
