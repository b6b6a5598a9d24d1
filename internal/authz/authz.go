// Package authz validates a caller's capability once at the API boundary.
// The resulting Capability value is threaded through service calls
// explicitly; nothing below the handlers re-derives it from session state.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulseline/broadcast-engine/internal/domain"
)

// Capability identifies an authenticated actor and the roles the identity
// provider attached to them.
type Capability struct {
	ActorID string
	Roles   []string
}

func (c Capability) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, have := range c.Roles {
		if strings.ToLower(strings.TrimSpace(have)) == role {
			return true
		}
	}
	return false
}

// Authorizer decides what a capability may do.
type Authorizer interface {
	AuthorizeBroadcast(ctx context.Context, cap Capability) error
	AuthorizeAdmin(ctx context.Context, cap Capability) error
}

// RoleAuthorizer grants operations by role membership.
type RoleAuthorizer struct {
	broadcastRoles []string
	adminRoles     []string
}

var _ Authorizer = (*RoleAuthorizer)(nil)

func NewRoleAuthorizer(broadcastRoles, adminRoles []string) *RoleAuthorizer {
	if len(broadcastRoles) == 0 {
		broadcastRoles = []string{"admin"}
	}
	if len(adminRoles) == 0 {
		adminRoles = []string{"admin"}
	}
	return &RoleAuthorizer{
		broadcastRoles: broadcastRoles,
		adminRoles:     adminRoles,
	}
}

func (a *RoleAuthorizer) AuthorizeBroadcast(_ context.Context, cap Capability) error {
	return a.require(cap, a.broadcastRoles, "broadcast")
}

func (a *RoleAuthorizer) AuthorizeAdmin(_ context.Context, cap Capability) error {
	return a.require(cap, a.adminRoles, "administer campaigns")
}

func (a *RoleAuthorizer) require(cap Capability, roles []string, action string) error {
	if strings.TrimSpace(cap.ActorID) == "" {
		return fmt.Errorf("%w: missing actor identity", domain.ErrUnauthorized)
	}
	for _, role := range roles {
		if cap.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("%w: actor %s may not %s", domain.ErrUnauthorized, cap.ActorID, action)
}
