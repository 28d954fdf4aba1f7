package authz

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

const tracerName = "github.com/platinummonkey/homestead/pkg/authz"

// DenyReason identifies the stage that denied a request
type DenyReason string

const (
	ReasonUnauthenticated      DenyReason = "unauthenticated"
	ReasonTenantMismatch       DenyReason = "tenant_mismatch"
	ReasonNoMembership         DenyReason = "no_membership"
	ReasonMembershipPending    DenyReason = "membership_pending"
	ReasonMembershipDisabled   DenyReason = "membership_disabled"
	ReasonTenantSuspended      DenyReason = "tenant_suspended"
	ReasonMissingPermission    DenyReason = "missing_permission"
	ReasonModuleDisabled       DenyReason = "module_disabled"
	ReasonNoSubscription       DenyReason = "no_subscription"
	ReasonSubscriptionReadOnly DenyReason = "subscription_read_only"
)

// Mode selects how multiple required permissions combine
type Mode int

const (
	// ModeAny allows when the principal holds at least one permission
	ModeAny Mode = iota
	// ModeAll allows only when the principal holds every permission
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "any"
}

// Request is a single authorization question
type Request struct {
	Principal   *auth.Principal
	Permissions []string
	Mode        Mode
	// TenantID is nil for platform-context requests
	TenantID *int64
	// ModuleKey names the product module the request belongs to, if any
	ModuleKey string
	// Write marks requests that mutate tenant data
	Write bool
}

// Decision is the gate's answer
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Detail  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Err converts a deny into a classified error; nil when allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonUnauthenticated {
		return autherr.Unauthenticated(d.Detail)
	}
	return autherr.Unauthorized(string(d.Reason), d.Detail)
}

// SessionValidator checks that a session is still usable
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) error
}

// MembershipSource reports membership and tenant standing
type MembershipSource interface {
	Status(ctx context.Context, userID, tenantID int64) (tenants.MembershipStatus, error)
	TenantStatus(ctx context.Context, tenantID int64) (tenants.TenantStatus, error)
}

// PermissionChecker answers permission queries, normally *rbac.Resolver
type PermissionChecker interface {
	HasAny(ctx context.Context, userID int64, tenantID *int64, keys ...string) (bool, error)
	HasAll(ctx context.Context, userID int64, tenantID *int64, keys ...string) (bool, error)
}

// ModuleChecker reports whether a tenant has a product module enabled
type ModuleChecker interface {
	IsModuleEnabled(ctx context.Context, tenantID int64, moduleKey string) (bool, error)
}

// SubscriptionAccess is a tenant's subscription standing
type SubscriptionAccess struct {
	HasAccess  bool
	IsReadOnly bool
	Reason     string
}

// SubscriptionChecker reports a tenant's subscription standing
type SubscriptionChecker interface {
	CheckSubscriptionAccess(ctx context.Context, tenantID int64) (SubscriptionAccess, error)
}

// Option configures a Gate
type Option func(*Gate)

// WithModuleChecker enables the module stage
func WithModuleChecker(modules ModuleChecker) Option {
	return func(g *Gate) { g.modules = modules }
}

// WithSubscriptionChecker enables the subscription stage
func WithSubscriptionChecker(subscriptions SubscriptionChecker) Option {
	return func(g *Gate) { g.subscriptions = subscriptions }
}

// WithLogger sets the gate's logger
func WithLogger(logger *observability.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithMetrics sets the gate's metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gate) { g.metrics = metrics }
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gate) { g.tracer = tracer }
}

// Gate is the authorization enforcement point
type Gate struct {
	sessions      SessionValidator
	memberships   MembershipSource
	permissions   PermissionChecker
	modules       ModuleChecker
	subscriptions SubscriptionChecker
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

// NewGate creates a gate over the core services
func NewGate(sessions SessionValidator, memberships MembershipSource, permissions PermissionChecker, opts ...Option) *Gate {
	g := &Gate{
		sessions:    sessions,
		memberships: memberships,
		permissions: permissions,
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	return g
}

// Authorize evaluates a request. A non-nil error means the decision could
// not be made (storage failure) and the request must not proceed.
func (g *Gate) Authorize(ctx context.Context, req Request) (Decision, error) {
	ctx, span := g.tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(
		attribute.Int64("homestead.user_id", req.Principal.UserID()),
		attribute.String("homestead.permissions", strings.Join(req.Permissions, ",")),
		attribute.String("homestead.mode", req.Mode.String()),
	))
	defer span.End()
	if req.TenantID != nil {
		span.SetAttributes(attribute.Int64("homestead.tenant_id", *req.TenantID))
	}

	decision, err := g.evaluate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization failed")
		g.logger.WithError(err).WithField("user_id", req.Principal.UserID()).Error("authorization could not be evaluated")
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.Bool("homestead.allowed", decision.Allowed),
		attribute.String("homestead.deny_reason", string(decision.Reason)),
	)
	g.metrics.RecordDecision(decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		g.logger.WithFields(map[string]interface{}{
			"user_id":     req.Principal.UserID(),
			"tenant_id":   req.TenantID,
			"permissions": req.Permissions,
			"reason":      decision.Reason,
		}).Debug("request denied")
	}
	return decision, nil
}

func (g *Gate) evaluate(ctx context.Context, req Request) (Decision, error) {
	p := req.Principal
	if p == nil || p.User == nil || p.SessionID == "" {
		return deny(ReasonUnauthenticated, "authentication required"), nil
	}
	if err := g.sessions.ValidateSession(ctx, p.SessionID); err != nil {
		if autherr.IsKind(err, autherr.KindUnauthenticated) {
			return deny(ReasonUnauthenticated, "session is no longer valid"), nil
		}
		return Decision{}, fmt.Errorf("failed to validate session: %w", err)
	}

	if req.TenantID != nil {
		if d, err := g.checkTenant(ctx, p, *req.TenantID); err != nil || !d.Allowed {
			return d, err
		}
	}

	if len(req.Permissions) > 0 {
		var granted bool
		var err error
		if req.Mode == ModeAll {
			granted, err = g.permissions.HasAll(ctx, p.UserID(), req.TenantID, req.Permissions...)
		} else {
			granted, err = g.permissions.HasAny(ctx, p.UserID(), req.TenantID, req.Permissions...)
		}
		if err != nil {
			return Decision{}, fmt.Errorf("failed to resolve permissions: %w", err)
		}
		if !granted {
			return deny(ReasonMissingPermission, "missing required permission"), nil
		}
	}

	if req.TenantID != nil {
		return g.checkCollaborators(ctx, req, *req.TenantID), nil
	}
	return allow(), nil
}

func (g *Gate) checkTenant(ctx context.Context, p *auth.Principal, tenantID int64) (Decision, error) {
	if p.SessionTenantID != nil && *p.SessionTenantID != tenantID {
		return deny(ReasonTenantMismatch, "session was opened for another tenant"), nil
	}
	if p.User.IsSuperAdmin() {
		return allow(), nil
	}

	status, err := g.memberships.Status(ctx, p.UserID(), tenantID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return deny(ReasonNoMembership, "not a member of this tenant"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load membership: %w", err)
	}
	switch status {
	case tenants.StatusActive:
	case tenants.StatusPendingInvite:
		return deny(ReasonMembershipPending, "membership is pending invitation acceptance"), nil
	case tenants.StatusDisabled:
		return deny(ReasonMembershipDisabled, "membership disabled"), nil
	default:
		return deny(ReasonNoMembership, "unknown membership status"), nil
	}

	tenantStatus, err := g.memberships.TenantStatus(ctx, tenantID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return deny(ReasonNoMembership, "tenant not found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenantStatus != tenants.TenantActive {
		return deny(ReasonTenantSuspended, "tenant suspended"), nil
	}
	return allow(), nil
}

// checkCollaborators runs the module and subscription stages. Collaborator
// errors deny.
func (g *Gate) checkCollaborators(ctx context.Context, req Request, tenantID int64) Decision {
	if g.modules != nil && req.ModuleKey != "" {
		enabled, err := g.modules.IsModuleEnabled(ctx, tenantID, req.ModuleKey)
		if err != nil {
			g.logger.WithError(err).WithField("module", req.ModuleKey).Warn("module check failed")
			return deny(ReasonModuleDisabled, "module status unavailable")
		}
		if !enabled {
			return deny(ReasonModuleDisabled, fmt.Sprintf("module %s is not enabled", req.ModuleKey))
		}
	}

	if g.subscriptions != nil {
		access, err := g.subscriptions.CheckSubscriptionAccess(ctx, tenantID)
		if err != nil {
			g.logger.WithError(err).WithField("tenant_id", tenantID).Warn("subscription check failed")
			return deny(ReasonNoSubscription, "subscription status unavailable")
		}
		if !access.HasAccess {
			return deny(ReasonNoSubscription, subscriptionDetail(access, "no active subscription"))
		}
		if access.IsReadOnly && req.Write {
			return deny(ReasonSubscriptionReadOnly, subscriptionDetail(access, "subscription is read-only"))
		}
	}
	return allow()
}

func subscriptionDetail(access SubscriptionAccess, fallback string) string {
	if access.Reason != "" {
		return access.Reason
	}
	return fallback
}
