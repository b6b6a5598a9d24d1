package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/service"
)

type CampaignService interface {
	Create(ctx context.Context, cap authz.Capability, input service.CreateInput) (*domain.Campaign, service.FanoutReport, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	CascadeDelete(ctx context.Context, cap authz.Capability, campaignID string) (int64, error)
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

func RegisterCampaignRoutes(router fiber.Router, service CampaignService) error {
	h, err := NewCampaignHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/campaigns", h.CreateCampaign)
	v1.Get("/campaigns/:id", h.GetCampaign)
	v1.Post("/campaigns/:id/cascade-delete", h.CascadeDeleteCampaign)

	return nil
}

type audienceRequest struct {
	Kind         string   `json:"kind"`
	Role         string   `json:"role,omitempty"`
	RecipientIDs []string `json:"recipientIds,omitempty"`
}

type createCampaignRequest struct {
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Category string          `json:"category"`
	Audience audienceRequest `json:"audience"`
}

type campaignResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Category  string          `json:"category"`
	Audience  audienceRequest `json:"audience"`
	CreatedBy string          `json:"createdBy"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
}

type createCampaignResponse struct {
	Campaign campaignResponse     `json:"campaign"`
	Report   service.FanoutReport `json:"report"`
}

type cascadeDeleteResponse struct {
	CampaignID        string `json:"campaignId"`
	DeliveriesRemoved int64  `json:"deliveriesRemoved"`
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input, err := requestToCreateInput(req)
	if err != nil {
		return toHTTPError(err)
	}

	campaign, report, err := h.service.Create(c.Context(), requestCapability(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createCampaignResponse{
		Campaign: toCampaignResponse(campaign),
		Report:   report,
	})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	campaign, err := h.service.Get(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *CampaignHandler) CascadeDeleteCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	removed, err := h.service.CascadeDelete(c.Context(), requestCapability(c), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(cascadeDeleteResponse{
		CampaignID:        id,
		DeliveriesRemoved: removed,
	})
}

func requestToCreateInput(req createCampaignRequest) (service.CreateInput, error) {
	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return service.CreateInput{}, err
	}
	kind, err := domain.ParseSelectorKindFromString(req.Audience.Kind)
	if err != nil {
		return service.CreateInput{}, err
	}

	return service.CreateInput{
		Title:    req.Title,
		Body:     req.Body,
		Category: category,
		Selector: domain.AudienceSelector{
			Kind:         kind,
			Role:         req.Audience.Role,
			RecipientIDs: req.Audience.RecipientIDs,
		},
	}, nil
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	if campaign == nil {
		return campaignResponse{}
	}
	return campaignResponse{
		ID:       campaign.ID,
		Title:    campaign.Title,
		Body:     campaign.Body,
		Category: campaign.Category.String(),
		Audience: audienceRequest{
			Kind:         campaign.Selector.Kind.String(),
			Role:         campaign.Selector.Role,
			RecipientIDs: campaign.Selector.RecipientIDs,
		},
		CreatedBy: campaign.CreatedBy,
		State:     campaign.State.String(),
		CreatedAt: campaign.CreatedAt,
	}
}
