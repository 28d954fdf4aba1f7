package invitations

import (
	"time"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// Status is the lifecycle state of an invitation
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
)

// Reason codes for rejected transitions
const (
	ReasonNotFound        = "invitation_not_found"
	ReasonAccepted        = "invitation_accepted"
	ReasonRevoked         = "invitation_revoked"
	ReasonExpired         = "invitation_expired"
	ReasonPending         = "invitation_pending"
	ReasonAlreadyMember   = "already_member"
	ReasonMemberDisabled  = "membership_disabled"
	ReasonTenantSuspended = "tenant_suspended"
)

// DefaultTTL is how long an invitation stays acceptable
const DefaultTTL = 7 * 24 * time.Hour

// Invitation is an offer for an email address to join a tenant
type Invitation struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	Email      string     `json:"email"`
	RoleIDs    []int64    `json:"role_ids"`
	TokenHash  string     `json:"-"`
	Status     Status     `json:"status"`
	InvitedBy  *int64     `json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedBy *int64     `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CreateRequest describes a new invitation
type CreateRequest struct {
	TenantID  int64   `json:"tenant_id"`
	Email     string  `json:"email"`
	RoleIDs   []int64 `json:"role_ids"`
	InvitedBy *int64  `json:"invited_by,omitempty"`
}

// AcceptResult is the outcome of a successful acceptance
type AcceptResult struct {
	User       *auth.User          `json:"user"`
	Membership *tenants.Membership `json:"membership"`
	// Created is true when the acceptance registered a new user
	Created bool `json:"created"`
}
