package audit

import (
	"time"
)

// EventType identifies an audited action
type EventType string

const (
	// Authentication events
	EventAuthLogin         EventType = "auth.login"
	EventAuthLogout        EventType = "auth.logout"
	EventAuthRefresh       EventType = "auth.refresh"
	EventAuthPasswordReset EventType = "auth.password_reset"

	// Membership events
	EventMembershipDisabled     EventType = "membership.disabled"
	EventMembershipEnabled      EventType = "membership.enabled"
	EventMembershipRolesUpdated EventType = "membership.roles_updated"

	// Invitation events
	EventInvitationCreated  EventType = "invitation.created"
	EventInvitationResent   EventType = "invitation.resent"
	EventInvitationRevoked  EventType = "invitation.revoked"
	EventInvitationAccepted EventType = "invitation.accepted"

	// Platform events
	EventTenantSuspended        EventType = "tenant.suspended"
	EventTenantReactivated      EventType = "tenant.reactivated"
	EventRolePermissionsUpdated EventType = "role.permissions_updated"
)

// Status is the outcome of an audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	// StatusDenied marks requests refused by authentication or authorization
	StatusDenied Status = "denied"
)

// StatusForCode maps an HTTP response code to an outcome
func StatusForCode(code int) Status {
	switch {
	case code < 400:
		return StatusSuccess
	case code == 401 || code == 403:
		return StatusDenied
	default:
		return StatusFailure
	}
}

// ResourceType is the kind of object an event acted on
type ResourceType string

const (
	ResourceUser       ResourceType = "user"
	ResourceMembership ResourceType = "membership"
	ResourceInvitation ResourceType = "invitation"
	ResourceTenant     ResourceType = "tenant"
	ResourceRole       ResourceType = "role"
	ResourceSession    ResourceType = "session"
)

// Event is a single audit record
type Event struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	EventType  EventType `json:"event_type"`
	Status     Status    `json:"status"`

	// ActorID is nil for unauthenticated requests such as login
	ActorID  *int64 `json:"actor_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID  string `json:"request_id,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Search limits
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SearchFilter narrows an audit search. Zero values match everything.
type SearchFilter struct {
	TenantID   *int64
	ActorID    *int64
	EventTypes []EventType
	Status     Status
	Since      *time.Time
	Until      *time.Time

	Limit  int
	Offset int
}

// Normalize clamps pagination to the supported range
func (f SearchFilter) Normalize() SearchFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
