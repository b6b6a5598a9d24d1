package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"github.com/pulseline/broadcast-engine/internal/stream"
)

const adminFeedView = "admin_feed"

// AdminFeedService aggregates live delivery rows into per-campaign
// statistics. Deleted rows leave both the reach and the read count, so a
// summary reflects what recipients can still see, not what was ever sent.
type AdminFeedService struct {
	deliveries repository.DeliveryRepository
	bus        stream.Bus
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewAdminFeedService(
	deliveries repository.DeliveryRepository,
	bus stream.Bus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*AdminFeedService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AdminFeedService{
		deliveries: deliveries,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Feed returns per-campaign summaries, most recently sent first, capped at
// AdminFeedLimit.
func (s *AdminFeedService) Feed(ctx context.Context) ([]domain.CampaignSummary, error) {
	records, err := s.deliveries.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(records, domain.AdminFeedLimit), nil
}

// Subscribe pushes a full feed snapshot now and after every delivery
// change. Admin views refresh on all events: any mutation can move a
// campaign's counts. Refresh failures and a lost bus subscription reach
// onError.
func (s *AdminFeedService) Subscribe(ctx context.Context, push func([]domain.CampaignSummary) error, onError func(error)) (func(), error) {
	refresh := func() error {
		summaries, err := s.Feed(ctx)
		if err != nil {
			return err
		}
		if err := push(summaries); err != nil {
			return err
		}
		s.metrics.IncSnapshotPush(adminFeedView)
		return nil
	}

	match := func(stream.Event) bool { return true }

	report := func(err error) {
		s.logger.Warn("admin feed refresh failed", zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}

	stop, err := stream.Listen(s.bus, match, refresh, report)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLiveSubscriptions(adminFeedView)
	return func() {
		stop()
		s.metrics.DecLiveSubscriptions(adminFeedView)
	}, nil
}

// summarize folds live rows into one summary per campaign group. Content
// fields come from the most recently created row of the group; SentAt is
// that row's creation time.
func summarize(records []domain.DeliveryRecord, limit int) []domain.CampaignSummary {
	byKey := make(map[string]*domain.CampaignSummary)

	for i := range records {
		record := &records[i]
		key := record.GroupKey()

		summary, ok := byKey[key]
		if !ok {
			summary = &domain.CampaignSummary{
				GroupKey:   key,
				CampaignID: record.CampaignID,
				Title:      record.Title,
				Body:       record.Body,
				Category:   record.Category,
				SentAt:     record.CreatedAt,
				SentBy:     record.SentBy,
			}
			byKey[key] = summary
		}

		summary.TotalSent++
		if record.Read {
			summary.ReadCount++
		}
		if record.CreatedAt.After(summary.SentAt) {
			summary.SentAt = record.CreatedAt
			summary.Title = record.Title
			summary.Body = record.Body
			summary.Category = record.Category
			summary.SentBy = record.SentBy
		}
	}

	summaries := make([]domain.CampaignSummary, 0, len(byKey))
	for _, summary := range byKey {
		summaries = append(summaries, *summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].SentAt.Equal(summaries[j].SentAt) {
			return summaries[i].SentAt.After(summaries[j].SentAt)
		}
		return summaries[i].GroupKey < summaries[j].GroupKey
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}
