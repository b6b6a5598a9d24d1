package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"github.com/pulseline/broadcast-engine/internal/stream"
)

const inboxView = "inbox"

// InboxService serves one recipient's view: snapshots, live subscriptions,
// and the four owner-scoped mutations. Every mutation is idempotent and
// publishes a change event so open subscriptions converge.
type InboxService struct {
	deliveries repository.DeliveryRepository
	bus        stream.Bus
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewInboxService(
	deliveries repository.DeliveryRepository,
	bus stream.Bus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*InboxService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InboxService{
		deliveries: deliveries,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Snapshot returns the recipient's live records, newest first, capped at
// InboxSnapshotLimit.
func (s *InboxService) Snapshot(ctx context.Context, recipientID string) ([]domain.DeliveryRecord, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.deliveries.ListInbox(ctx, recipientID, domain.InboxSnapshotLimit)
}

// Subscribe pushes a full snapshot now and again after every change that
// touches this recipient. push receives complete snapshots, never deltas;
// the returned stop function detaches the subscription and is safe to call
// more than once. Refresh failures and a lost bus subscription reach
// onError; the subscription is not retried server-side.
func (s *InboxService) Subscribe(ctx context.Context, recipientID string, push func([]domain.DeliveryRecord) error, onError func(error)) (func(), error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	refresh := func() error {
		records, err := s.deliveries.ListInbox(ctx, recipientID, domain.InboxSnapshotLimit)
		if err != nil {
			return err
		}
		if err := push(records); err != nil {
			return err
		}
		s.metrics.IncSnapshotPush(inboxView)
		return nil
	}

	match := func(ev stream.Event) bool {
		return ev.TouchesRecipient(recipientID)
	}

	report := func(err error) {
		s.logger.Warn("inbox snapshot refresh failed",
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
		if onError != nil {
			onError(err)
		}
	}

	stop, err := stream.Listen(s.bus, match, refresh, report)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLiveSubscriptions(inboxView)
	return func() {
		stop()
		s.metrics.DecLiveSubscriptions(inboxView)
	}, nil
}

// MarkRead flags one record as read. Reading an already-read record keeps
// the original read timestamp.
func (s *InboxService) MarkRead(ctx context.Context, recipientID, deliveryID string) error {
	recipientID, deliveryID, err := requireOwnerAndID(recipientID, deliveryID)
	if err != nil {
		return err
	}

	record, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}

	if err := s.deliveries.MarkRead(ctx, recipientID, deliveryID); err != nil {
		return err
	}

	s.publishRecipientChange(ctx, record.CampaignID, recipientID)
	return nil
}

// MarkAllRead flags every live unread record of the recipient.
func (s *InboxService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	updated, err := s.deliveries.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		s.publishRecipientChange(ctx, "", recipientID)
	}
	return updated, nil
}

// SoftDelete removes one record from the recipient's view. The row stays
// behind for admin statistics.
func (s *InboxService) SoftDelete(ctx context.Context, recipientID, deliveryID string) error {
	recipientID, deliveryID, err := requireOwnerAndID(recipientID, deliveryID)
	if err != nil {
		return err
	}

	record, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}

	if err := s.deliveries.SoftDelete(ctx, recipientID, deliveryID); err != nil {
		return err
	}

	s.publishRecipientChange(ctx, record.CampaignID, recipientID)
	return nil
}

// ClearAll soft-deletes every live record of the recipient.
func (s *InboxService) ClearAll(ctx context.Context, recipientID string) (int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	removed, err := s.deliveries.ClearAll(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.publishRecipientChange(ctx, "", recipientID)
	}
	return removed, nil
}

func (s *InboxService) publishRecipientChange(ctx context.Context, campaignID, recipientID string) {
	ev := stream.Event{
		CampaignID:   campaignID,
		RecipientIDs: []string{recipientID},
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish change event",
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
	}
}

func requireOwnerAndID(recipientID, deliveryID string) (string, string, error) {
	recipientID = strings.TrimSpace(recipientID)
	deliveryID = strings.TrimSpace(deliveryID)
	if recipientID == "" {
		return "", "", fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if deliveryID == "" {
		return "", "", fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	return recipientID, deliveryID, nil
}
