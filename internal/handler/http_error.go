package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/domain"
)

const (
	headerActorID    = "X-Actor-Id"
	headerActorRoles = "X-Actor-Roles"
)

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

// requestCapability reads the actor identity the gateway attached to the
// request. The gateway authenticates; this service only authorizes.
func requestCapability(c *fiber.Ctx) authz.Capability {
	cap := authz.Capability{
		ActorID: strings.TrimSpace(c.Get(headerActorID)),
	}

	for _, role := range strings.Split(c.Get(headerActorRoles), ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			cap.Roles = append(cap.Roles, role)
		}
	}
	return cap
}
