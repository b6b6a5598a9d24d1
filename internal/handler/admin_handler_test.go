package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/service"
	"github.com/pulseline/broadcast-engine/internal/stream"
	"github.com/pulseline/broadcast-engine/internal/transport"
)

type stubFeedService struct {
	feedFn      func(ctx context.Context) ([]domain.CampaignSummary, error)
	subscribeFn func(ctx context.Context, push func([]domain.CampaignSummary) error, onError func(error)) (func(), error)
}

func (s *stubFeedService) Feed(ctx context.Context) ([]domain.CampaignSummary, error) {
	return s.feedFn(ctx)
}

func (s *stubFeedService) Subscribe(ctx context.Context, push func([]domain.CampaignSummary) error, onError func(error)) (func(), error) {
	if s.subscribeFn != nil {
		return s.subscribeFn(ctx, push, onError)
	}
	return func() {}, nil
}

type stubDashboardService struct {
	countersFn func(ctx context.Context) (service.Counters, error)
}

func (s *stubDashboardService) Counters(ctx context.Context) (service.Counters, error) {
	return s.countersFn(ctx)
}

func (s *stubDashboardService) Subscribe(context.Context, func(service.Counters) error, func(error)) (func(), error) {
	return func() {}, nil
}

func newAdminTestApp(t *testing.T, feed AdminFeedService, dashboard DashboardService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterAdminRoutes(app, feed, dashboard, authz.NewRoleAuthorizer(nil, nil)); err != nil {
		t.Fatalf("RegisterAdminRoutes() error = %v", err)
	}
	return app
}

func TestGetFeedEndpoint(t *testing.T) {
	t.Parallel()

	feed := &stubFeedService{
		feedFn: func(context.Context) ([]domain.CampaignSummary, error) {
			return []domain.CampaignSummary{
				{
					GroupKey:   "c1",
					CampaignID: "c1",
					Title:      "Notice",
					Category:   domain.CategoryInfo,
					TotalSent:  10,
					ReadCount:  4,
					SentAt:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
					SentBy:     "admin-1",
				},
			}, nil
		},
	}
	dashboard := &stubDashboardService{
		countersFn: func(context.Context) (service.Counters, error) {
			return service.Counters{}, nil
		},
	}
	app := newAdminTestApp(t, feed, dashboard)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/admin/feed", "", adminHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, respBody)
	}

	var result feedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(result.Data) != 1 || result.Data[0].TotalSent != 10 || result.Data[0].ReadCount != 4 {
		t.Fatalf("feed = %+v, want one summary with 10/4", result.Data)
	}

	// No admin role, no feed.
	resp, _ = performRequest(t, app, http.MethodGet, "/v1/admin/feed", "", map[string]string{
		headerActorID:    "u1",
		headerActorRoles: "donor",
	})
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 without admin role", resp.StatusCode)
	}
}

func TestStreamFeedEndpoint(t *testing.T) {
	t.Parallel()

	feed := &stubFeedService{
		feedFn: func(context.Context) ([]domain.CampaignSummary, error) { return nil, nil },
		subscribeFn: func(_ context.Context, push func([]domain.CampaignSummary) error, onError func(error)) (func(), error) {
			if err := push([]domain.CampaignSummary{{
				GroupKey:   "c1",
				CampaignID: "c1",
				Title:      "Notice",
				Category:   domain.CategoryInfo,
				TotalSent:  3,
				ReadCount:  1,
			}}); err != nil {
				t.Errorf("push() error = %v", err)
			}
			// Ending the subscription ends the stream, which lets the test
			// read the whole body.
			onError(stream.ErrSubscriptionLost)
			return func() {}, nil
		},
	}
	dashboard := &stubDashboardService{
		countersFn: func(context.Context) (service.Counters, error) { return service.Counters{}, nil },
	}
	app := newAdminTestApp(t, feed, dashboard)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/admin/feed/stream", "", adminHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	wire := string(respBody)
	if !strings.Contains(wire, "event: snapshot\n") || !strings.Contains(wire, `"groupKey":"c1"`) {
		t.Fatalf("wire missing initial snapshot frame: %q", wire)
	}

	// The stream checks the capability before attaching.
	resp, _ = performRequest(t, app, http.MethodGet, "/v1/admin/feed/stream", "", nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 without capability", resp.StatusCode)
	}
}

func TestGetCountersEndpoint(t *testing.T) {
	t.Parallel()

	feed := &stubFeedService{
		feedFn: func(context.Context) ([]domain.CampaignSummary, error) { return nil, nil },
	}
	dashboard := &stubDashboardService{
		countersFn: func(context.Context) (service.Counters, error) {
			return service.Counters{DistinctCampaigns: 3, LiveDeliveries: 42, TotalRead: 17}, nil
		},
	}
	app := newAdminTestApp(t, feed, dashboard)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/admin/counters", "", adminHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, respBody)
	}

	var counters service.Counters
	if err := json.Unmarshal(respBody, &counters); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if counters.DistinctCampaigns != 3 || counters.LiveDeliveries != 42 || counters.TotalRead != 17 {
		t.Fatalf("counters = %+v, want {3 42 17}", counters)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/admin/counters", "", nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 without capability", resp.StatusCode)
	}
}
