package api

import (
	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/invitations"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CreateInvitationRequest is the body of POST /tenants/{tenant_id}/invitations
type CreateInvitationRequest struct {
	Email   string  `json:"email"`
	RoleIDs []int64 `json:"role_ids"`
}

// InvitationResponse carries an invitation and, right after creation or
// resend, its plaintext token. The token is never retrievable again.
type InvitationResponse struct {
	Invitation *invitations.Invitation `json:"invitation"`
	Token      string                  `json:"token,omitempty"`
}

// AcceptInvitationRequest is the body of POST /invitations/accept
type AcceptInvitationRequest struct {
	Token       string `json:"token"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// UpdateRolesRequest is the body of PUT /tenants/{tenant_id}/members/{user_id}/roles
type UpdateRolesRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

// SetPermissionsRequest is the body of PUT /roles/{id}/permissions
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// MembersResponse lists a tenant's memberships
type MembersResponse struct {
	Members []tenants.Membership `json:"members"`
}

// RolesResponse lists roles
type RolesResponse struct {
	Roles []rbac.Role `json:"roles"`
}

// InvitationsResponse lists a tenant's invitations
type InvitationsResponse struct {
	Invitations []invitations.Invitation `json:"invitations"`
}

// AuditEventsResponse is a page of the audit trail
type AuditEventsResponse struct {
	Events []audit.Event `json:"events"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
