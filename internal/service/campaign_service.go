package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"github.com/pulseline/broadcast-engine/internal/stream"
)

// CampaignService owns the write side: create-and-fan-out, lookup, and the
// admin cascade delete.
type CampaignService struct {
	campaigns  repository.CampaignRepository
	deliveries repository.DeliveryRepository
	authorizer authz.Authorizer
	resolver   *AudienceResolver
	fanout     *FanoutWriter
	bus        stream.Bus
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	deliveries repository.DeliveryRepository,
	authorizer authz.Authorizer,
	resolver *AudienceResolver,
	fanout *FanoutWriter,
	bus stream.Bus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("audience resolver is required")
	}
	if fanout == nil {
		return nil, fmt.Errorf("fanout writer is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns:  campaigns,
		deliveries: deliveries,
		authorizer: authorizer,
		resolver:   resolver,
		fanout:     fanout,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// CreateInput carries an admin's broadcast request into the service.
type CreateInput struct {
	Title    string
	Body     string
	Category domain.Category
	Selector domain.AudienceSelector
}

// Create records the campaign, resolves its audience once, fans out one
// delivery per recipient, and wakes live subscribers. The campaign row is
// persisted before fan-out so a crash mid-write can be repaired by
// retrying: existing rows are skipped, missing ones filled in.
func (s *CampaignService) Create(ctx context.Context, cap authz.Capability, input CreateInput) (*domain.Campaign, FanoutReport, error) {
	if err := s.authorizer.AuthorizeBroadcast(ctx, cap); err != nil {
		return nil, FanoutReport{}, err
	}

	campaign := &domain.Campaign{
		ID:        s.newID(),
		Title:     strings.TrimSpace(input.Title),
		Body:      strings.TrimSpace(input.Body),
		Category:  input.Category,
		Selector:  input.Selector,
		CreatedBy: cap.ActorID,
		State:     domain.CampaignActive,
		CreatedAt: s.now().UTC(),
	}
	if err := campaign.Validate(); err != nil {
		return nil, FanoutReport{}, err
	}

	resolution, err := s.resolver.Resolve(ctx, campaign.Selector)
	if err != nil {
		return nil, FanoutReport{}, err
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, FanoutReport{}, fmt.Errorf("failed to persist campaign: %w", err)
	}
	s.metrics.IncCampaignCreated(campaign.Category.String())

	report, err := s.fanout.Fanout(ctx, campaign, resolution.RecipientIDs)
	if err != nil {
		return nil, FanoutReport{}, err
	}

	if report.Created > 0 {
		s.publish(ctx, stream.Event{
			CampaignID:   campaign.ID,
			RecipientIDs: resolution.RecipientIDs,
		})
	}

	s.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("category", campaign.Category.String()),
		zap.String("selector_kind", campaign.Selector.Kind.String()),
		zap.String("created_by", campaign.CreatedBy),
		zap.Int("audience_size", len(resolution.RecipientIDs)),
	)

	return campaign, report, nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return s.campaigns.GetByID(ctx, id)
}

// CascadeDelete retires a campaign and soft-deletes every recipient's live
// copy of it in one shot. Re-running it is a no-op.
func (s *CampaignService) CascadeDelete(ctx context.Context, cap authz.Capability, campaignID string) (int64, error) {
	if err := s.authorizer.AuthorizeAdmin(ctx, cap); err != nil {
		return 0, err
	}

	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return 0, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}

	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return 0, err
	}

	removed, err := s.deliveries.CascadeDelete(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete deliveries: %w", err)
	}

	if err := s.campaigns.Retire(ctx, campaignID); err != nil {
		return 0, err
	}

	s.metrics.IncCascadeDelete()

	// Affected recipients are not enumerated here; an empty recipient list
	// wakes every subscriber.
	s.publish(ctx, stream.Event{CampaignID: campaignID})

	s.logger.Info("campaign cascade deleted",
		zap.String("campaign_id", campaignID),
		zap.String("actor_id", cap.ActorID),
		zap.Int64("deliveries_removed", removed),
	)

	return removed, nil
}

func (s *CampaignService) publish(ctx context.Context, ev stream.Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish change event",
			zap.String("campaign_id", ev.CampaignID),
			zap.Error(err),
		)
	}
}
