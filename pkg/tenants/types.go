package tenants

import (
	"time"

	"github.com/platinummonkey/homestead/pkg/rbac"
)

// TenantStatus represents tenant status
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is one customer organization
type Tenant struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// MembershipStatus is the lifecycle state of a membership
type MembershipStatus string

const (
	StatusPendingInvite MembershipStatus = "PENDING_INVITE"
	StatusActive        MembershipStatus = "ACTIVE"
	StatusDisabled      MembershipStatus = "DISABLED"
)

// Membership links a user to a tenant
type Membership struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	TenantID    int64            `json:"tenant_id"`
	Status      MembershipStatus `json:"status"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name"`
	InvitedBy   *int64           `json:"invited_by,omitempty"`
	InvitedAt   *time.Time       `json:"invited_at,omitempty"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// MemberDetail is a membership with the roles held in its tenant
type MemberDetail struct {
	Membership
	Roles []rbac.Role `json:"roles"`
}
