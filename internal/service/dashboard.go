package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"github.com/pulseline/broadcast-engine/internal/stream"
)

const countersView = "counters"

// Counters is the dashboard headline: live campaign groups, live delivery
// rows, and how many of those rows are read. Derived from the same grouping
// as the admin feed, so the two views never disagree.
type Counters struct {
	DistinctCampaigns int `json:"distinctCampaigns"`
	LiveDeliveries    int `json:"liveDeliveries"`
	TotalRead         int `json:"totalRead"`
}

// DashboardService computes the counters and serves their live stream.
type DashboardService struct {
	deliveries repository.DeliveryRepository
	bus        stream.Bus
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewDashboardService(
	deliveries repository.DeliveryRepository,
	bus stream.Bus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*DashboardService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DashboardService{
		deliveries: deliveries,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

func (s *DashboardService) Counters(ctx context.Context) (Counters, error) {
	records, err := s.deliveries.ListActive(ctx)
	if err != nil {
		return Counters{}, err
	}

	// Group with the full record set, not the feed's display cap: counters
	// cover everything live even when the feed page truncates.
	summaries := summarize(records, 0)

	counters := Counters{DistinctCampaigns: len(summaries)}
	for _, summary := range summaries {
		counters.LiveDeliveries += summary.TotalSent
		counters.TotalRead += summary.ReadCount
	}
	return counters, nil
}

// Subscribe pushes the counters now and after every delivery change.
// Refresh failures and a lost bus subscription reach onError.
func (s *DashboardService) Subscribe(ctx context.Context, push func(Counters) error, onError func(error)) (func(), error) {
	refresh := func() error {
		counters, err := s.Counters(ctx)
		if err != nil {
			return err
		}
		if err := push(counters); err != nil {
			return err
		}
		s.metrics.IncSnapshotPush(countersView)
		return nil
	}

	match := func(stream.Event) bool { return true }

	report := func(err error) {
		s.logger.Warn("dashboard counters refresh failed", zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}

	stop, err := stream.Listen(s.bus, match, refresh, report)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLiveSubscriptions(countersView)
	return func() {
		stop()
		s.metrics.DecLiveSubscriptions(countersView)
	}, nil
}
