package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulseline/broadcast-engine/internal/domain"
)

type InboxService interface {
	Snapshot(ctx context.Context, recipientID string) ([]domain.DeliveryRecord, error)
	Subscribe(ctx context.Context, recipientID string, push func([]domain.DeliveryRecord) error, onError func(error)) (func(), error)
	MarkRead(ctx context.Context, recipientID, deliveryID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	SoftDelete(ctx context.Context, recipientID, deliveryID string) error
	ClearAll(ctx context.Context, recipientID string) (int64, error)
}

type InboxHandler struct {
	service InboxService
}

func NewInboxHandler(service InboxService) (*InboxHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("inbox service is required")
	}
	return &InboxHandler{service: service}, nil
}

func RegisterInboxRoutes(router fiber.Router, service InboxService) error {
	h, err := NewInboxHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/inbox/:recipientId", h.GetInbox)
	v1.Get("/inbox/:recipientId/stream", h.StreamInbox)
	v1.Post("/inbox/:recipientId/read-all", h.MarkAllRead)
	v1.Post("/inbox/:recipientId/clear", h.ClearAll)
	v1.Post("/inbox/:recipientId/deliveries/:id/read", h.MarkRead)
	v1.Post("/inbox/:recipientId/deliveries/:id/delete", h.DeleteDelivery)

	return nil
}

type deliveryResponse struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaignId,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Category   string     `json:"category"`
	SentBy     string     `json:"sentBy"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	SentAt     time.Time  `json:"sentAt"`
}

type inboxResponse struct {
	RecipientID string             `json:"recipientId"`
	Data        []deliveryResponse `json:"data"`
}

func (h *InboxHandler) GetInbox(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	records, err := h.service.Snapshot(c.Context(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(inboxResponse{
		RecipientID: recipientID,
		Data:        toDeliveryResponses(records),
	})
}

func (h *InboxHandler) StreamInbox(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	if recipientID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "recipient id is required")
	}

	return writeSSE(c, func(ctx context.Context, emit func([]byte) error, emitError func(error)) (func(), error) {
		return h.service.Subscribe(ctx, recipientID, func(records []domain.DeliveryRecord) error {
			payload, err := json.Marshal(inboxResponse{
				RecipientID: recipientID,
				Data:        toDeliveryResponses(records),
			})
			if err != nil {
				return err
			}
			return emit(payload)
		}, emitError)
	})
}

func (h *InboxHandler) MarkRead(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	deliveryID := strings.TrimSpace(c.Params("id"))

	if err := h.service.MarkRead(c.Context(), recipientID, deliveryID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": deliveryID,
		"read":       true,
	})
}

func (h *InboxHandler) MarkAllRead(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	updated, err := h.service.MarkAllRead(c.Context(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"recipientId": recipientID,
		"updated":     updated,
	})
}

func (h *InboxHandler) DeleteDelivery(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	deliveryID := strings.TrimSpace(c.Params("id"))

	if err := h.service.SoftDelete(c.Context(), recipientID, deliveryID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": deliveryID,
		"deleted":    true,
	})
}

func (h *InboxHandler) ClearAll(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	removed, err := h.service.ClearAll(c.Context(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"recipientId": recipientID,
		"removed":     removed,
	})
}

func toDeliveryResponses(records []domain.DeliveryRecord) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(records))
	for i := range records {
		record := &records[i]
		responses = append(responses, deliveryResponse{
			ID:         record.ID,
			CampaignID: record.CampaignID,
			Title:      record.Title,
			Body:       record.Body,
			Category:   record.Category.String(),
			SentBy:     record.SentBy,
			Read:       record.Read,
			ReadAt:     record.ReadAt,
			SentAt:     record.CreatedAt,
		})
	}
	return responses
}
