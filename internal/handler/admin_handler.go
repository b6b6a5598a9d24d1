package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/service"
)

type AdminFeedService interface {
	Feed(ctx context.Context) ([]domain.CampaignSummary, error)
	Subscribe(ctx context.Context, push func([]domain.CampaignSummary) error, onError func(error)) (func(), error)
}

type DashboardService interface {
	Counters(ctx context.Context) (service.Counters, error)
	Subscribe(ctx context.Context, push func(service.Counters) error, onError func(error)) (func(), error)
}

// AdminHandler serves the aggregate views. Every route checks the admin
// capability before touching data.
type AdminHandler struct {
	feed       AdminFeedService
	dashboard  DashboardService
	authorizer authz.Authorizer
}

func NewAdminHandler(feed AdminFeedService, dashboard DashboardService, authorizer authz.Authorizer) (*AdminHandler, error) {
	if feed == nil {
		return nil, fmt.Errorf("admin feed service is required")
	}
	if dashboard == nil {
		return nil, fmt.Errorf("dashboard service is required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	return &AdminHandler{
		feed:       feed,
		dashboard:  dashboard,
		authorizer: authorizer,
	}, nil
}

func RegisterAdminRoutes(router fiber.Router, feed AdminFeedService, dashboard DashboardService, authorizer authz.Authorizer) error {
	h, err := NewAdminHandler(feed, dashboard, authorizer)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/admin/feed", h.GetFeed)
	v1.Get("/admin/feed/stream", h.StreamFeed)
	v1.Get("/admin/counters", h.GetCounters)
	v1.Get("/admin/counters/stream", h.StreamCounters)

	return nil
}

type feedResponse struct {
	Data []domain.CampaignSummary `json:"data"`
}

func (h *AdminHandler) GetFeed(c *fiber.Ctx) error {
	if err := h.authorizer.AuthorizeAdmin(c.Context(), requestCapability(c)); err != nil {
		return toHTTPError(err)
	}

	summaries, err := h.feed.Feed(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(feedResponse{Data: summaries})
}

func (h *AdminHandler) StreamFeed(c *fiber.Ctx) error {
	if err := h.authorizer.AuthorizeAdmin(c.Context(), requestCapability(c)); err != nil {
		return toHTTPError(err)
	}

	return writeSSE(c, func(ctx context.Context, emit func([]byte) error, emitError func(error)) (func(), error) {
		return h.feed.Subscribe(ctx, func(summaries []domain.CampaignSummary) error {
			payload, err := json.Marshal(feedResponse{Data: summaries})
			if err != nil {
				return err
			}
			return emit(payload)
		}, emitError)
	})
}

func (h *AdminHandler) GetCounters(c *fiber.Ctx) error {
	if err := h.authorizer.AuthorizeAdmin(c.Context(), requestCapability(c)); err != nil {
		return toHTTPError(err)
	}

	counters, err := h.dashboard.Counters(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(counters)
}

func (h *AdminHandler) StreamCounters(c *fiber.Ctx) error {
	if err := h.authorizer.AuthorizeAdmin(c.Context(), requestCapability(c)); err != nil {
		return toHTTPError(err)
	}

	return writeSSE(c, func(ctx context.Context, emit func([]byte) error, emitError func(error)) (func(), error) {
		return h.dashboard.Subscribe(ctx, func(counters service.Counters) error {
			payload, err := json.Marshal(counters)
			if err != nil {
				return err
			}
			return emit(payload)
		}, emitError)
	})
}
