package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/pulseline/broadcast-engine/internal/domain"
)

func TestRoleAuthorizerBroadcast(t *testing.T) {
	t.Parallel()

	authorizer := NewRoleAuthorizer([]string{"admin", "coordinator"}, nil)

	tests := []struct {
		name    string
		cap     Capability
		wantErr bool
	}{
		{
			name: "admin may broadcast",
			cap:  Capability{ActorID: "a1", Roles: []string{"admin"}},
		},
		{
			name: "coordinator may broadcast",
			cap:  Capability{ActorID: "a2", Roles: []string{"Coordinator"}},
		},
		{
			name:    "donor may not broadcast",
			cap:     Capability{ActorID: "u1", Roles: []string{"donor"}},
			wantErr: true,
		},
		{
			name:    "anonymous may not broadcast",
			cap:     Capability{Roles: []string{"admin"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := authorizer.AuthorizeBroadcast(context.Background(), tt.cap)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Fatalf("AuthorizeBroadcast() error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthorizeBroadcast() unexpected error = %v", err)
			}
		})
	}
}

func TestRoleAuthorizerAdminDefaults(t *testing.T) {
	t.Parallel()

	authorizer := NewRoleAuthorizer(nil, nil)

	if err := authorizer.AuthorizeAdmin(context.Background(), Capability{ActorID: "a1", Roles: []string{"admin"}}); err != nil {
		t.Fatalf("AuthorizeAdmin() unexpected error = %v", err)
	}

	err := authorizer.AuthorizeAdmin(context.Background(), Capability{ActorID: "u1", Roles: []string{"donor"}})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("AuthorizeAdmin() error = %v, want ErrUnauthorized", err)
	}
}

func TestCapabilityHasRole(t *testing.T) {
	t.Parallel()

	cap := Capability{ActorID: "a1", Roles: []string{" Admin ", "donor"}}
	if !cap.HasRole("admin") {
		t.Fatal("HasRole(admin) = false, want true")
	}
	if cap.HasRole("recipient") {
		t.Fatal("HasRole(recipient) = true, want false")
	}
}
