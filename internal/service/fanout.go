package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/push"
	"github.com/pulseline/broadcast-engine/internal/ratelimit"
	"github.com/pulseline/broadcast-engine/internal/repository"
)

const (
	defaultFanoutConcurrency = 16
	fanoutLimiterKey         = "fanout"

	// EmptyAudienceWarning is returned instead of an error when a selector
	// resolves to nobody: the campaign is still recorded, nothing is sent.
	EmptyAudienceWarning = "audience resolved to zero recipients; nothing was sent"
)

// FanoutFailure is one recipient whose delivery row could not be written.
type FanoutFailure struct {
	RecipientID string `json:"recipientId"`
	Reason      string `json:"reason"`
}

// FanoutReport accounts for every recipient of one fan-out:
// Created + AlreadyDelivered + len(Failed) == Attempted.
type FanoutReport struct {
	Attempted        int             `json:"attempted"`
	Created          int             `json:"created"`
	AlreadyDelivered int             `json:"alreadyDelivered"`
	Failed           []FanoutFailure `json:"failed,omitempty"`
	Warning          string          `json:"warning,omitempty"`
}

// FanoutWriter materializes one delivery row per resolved recipient.
// Writes are idempotent: retrying a partially failed fan-out only touches
// the recipients that are still missing a row.
type FanoutWriter struct {
	deliveries  repository.DeliveryRepository
	limiter     ratelimit.RateLimiter
	pusher      push.Pusher
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewFanoutWriter(
	deliveries repository.DeliveryRepository,
	limiter ratelimit.RateLimiter,
	pusher push.Pusher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	concurrency int,
) (*FanoutWriter, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if pusher == nil {
		pusher = push.NoopPusher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = defaultFanoutConcurrency
	}

	return &FanoutWriter{
		deliveries:  deliveries,
		limiter:     limiter,
		pusher:      pusher,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Fanout writes one delivery per recipient. Per-recipient failures are
// collected, not fatal: the report always covers the whole audience.
func (w *FanoutWriter) Fanout(ctx context.Context, campaign *domain.Campaign, recipientIDs []string) (FanoutReport, error) {
	if campaign == nil {
		return FanoutReport{}, fmt.Errorf("%w: campaign is required", domain.ErrValidation)
	}

	if len(recipientIDs) == 0 {
		return FanoutReport{Warning: EmptyAudienceWarning}, nil
	}

	start := w.now()
	report := FanoutReport{Attempted: len(recipientIDs)}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency)

	for _, recipientID := range recipientIDs {
		recipientID := recipientID
		group.Go(func() error {
			created, err := w.writeOne(groupCtx, campaign, recipientID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, FanoutFailure{
					RecipientID: recipientID,
					Reason:      err.Error(),
				})
				w.metrics.IncDeliveryFannedOut("failed")
			case created:
				report.Created++
				w.metrics.IncDeliveryFannedOut("created")
			default:
				report.AlreadyDelivered++
				w.metrics.IncDeliveryFannedOut("duplicate")
			}
			return nil
		})
	}

	// Workers never return errors; Wait only fences completion.
	_ = group.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].RecipientID < report.Failed[j].RecipientID
	})

	w.metrics.ObserveFanoutDuration(w.now().Sub(start))
	w.logger.Info("fan-out completed",
		zap.String("campaign_id", campaign.ID),
		zap.Int("attempted", report.Attempted),
		zap.Int("created", report.Created),
		zap.Int("already_delivered", report.AlreadyDelivered),
		zap.Int("failed", len(report.Failed)),
	)

	return report, nil
}

func (w *FanoutWriter) writeOne(ctx context.Context, campaign *domain.Campaign, recipientID string) (bool, error) {
	if err := w.limiter.Wait(ctx, fanoutLimiterKey); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	record := &domain.DeliveryRecord{
		ID:          w.newID(),
		CampaignID:  campaign.ID,
		RecipientID: recipientID,
		Title:       campaign.Title,
		Body:        campaign.Body,
		Category:    campaign.Category,
		SentBy:      campaign.CreatedBy,
		State:       domain.DeliveryActive,
		CreatedAt:   w.now().UTC(),
	}

	created, err := w.deliveries.CreateIgnoreConflict(ctx, record)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	w.notifyGateway(ctx, record)
	return true, nil
}

// notifyGateway is best effort. The inbox row is already durable; a gateway
// outage costs a device banner, not the notification.
func (w *FanoutWriter) notifyGateway(ctx context.Context, record *domain.DeliveryRecord) {
	msg := push.Message{
		DeliveryID:  record.ID,
		CampaignID:  record.CampaignID,
		RecipientID: record.RecipientID,
		Title:       record.Title,
		Body:        record.Body,
		Category:    record.Category.String(),
		SentAt:      record.CreatedAt,
	}
	if err := w.pusher.Push(ctx, msg); err != nil {
		w.logger.Warn("push gateway publish failed",
			zap.String("delivery_id", record.ID),
			zap.String("recipient_id", record.RecipientID),
			zap.Error(err),
		)
	}
}
