package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

type stubSessions struct {
	err error
}

func (s stubSessions) ValidateSession(context.Context, string) error { return s.err }

type stubMemberships struct {
	status       tenants.MembershipStatus
	statusErr    error
	tenantStatus tenants.TenantStatus
	tenantErr    error
}

func (s stubMemberships) Status(context.Context, int64, int64) (tenants.MembershipStatus, error) {
	return s.status, s.statusErr
}

func (s stubMemberships) TenantStatus(context.Context, int64) (tenants.TenantStatus, error) {
	return s.tenantStatus, s.tenantErr
}

type stubPermissions struct {
	granted bool
	err     error
	calls   []string
}

func (s *stubPermissions) HasAny(_ context.Context, _ int64, _ *int64, keys ...string) (bool, error) {
	s.calls = append(s.calls, "any")
	return s.granted, s.err
}

func (s *stubPermissions) HasAll(_ context.Context, _ int64, _ *int64, keys ...string) (bool, error) {
	s.calls = append(s.calls, "all")
	return s.granted, s.err
}

type stubModules struct {
	enabled bool
	err     error
}

func (s stubModules) IsModuleEnabled(context.Context, int64, string) (bool, error) {
	return s.enabled, s.err
}

type stubSubscriptions struct {
	access SubscriptionAccess
	err    error
}

func (s stubSubscriptions) CheckSubscriptionAccess(context.Context, int64) (SubscriptionAccess, error) {
	return s.access, s.err
}

func activeMemberships() stubMemberships {
	return stubMemberships{status: tenants.StatusActive, tenantStatus: tenants.TenantActive}
}

func principal(userID int64) *auth.Principal {
	return &auth.Principal{User: &auth.User{ID: userID, GlobalRole: auth.GlobalRoleUser, IsActive: true}, SessionID: "sess-1"}
}

func tenant(id int64) *int64 { return &id }

func TestGate_Stages(t *testing.T) {
	errStore := errors.New("connection reset")

	tests := []struct {
		name        string
		sessions    stubSessions
		memberships stubMemberships
		perms       *stubPermissions
		req         Request
		wantReason  DenyReason
		wantAllowed bool
		wantErr     bool
		wantChecks  int
	}{
		{
			name:        "allowed",
			memberships: activeMemberships(),
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantAllowed: true,
			wantChecks:  1,
		},
		{
			name:       "no principal",
			perms:      &stubPermissions{granted: true},
			req:        Request{Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason: ReasonUnauthenticated,
		},
		{
			name:       "revoked session",
			sessions:   stubSessions{err: autherr.Unauthenticated("session revoked")},
			perms:      &stubPermissions{granted: true},
			req:        Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason: ReasonUnauthenticated,
		},
		{
			name:     "session store failure",
			sessions: stubSessions{err: errStore},
			perms:    &stubPermissions{granted: true},
			req:      Request{Principal: principal(1), TenantID: tenant(5)},
			wantErr:  true,
		},
		{
			name:        "no membership",
			memberships: stubMemberships{statusErr: autherr.NotFound("membership_not_found", "membership not found")},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason:  ReasonNoMembership,
		},
		{
			name:        "pending membership",
			memberships: stubMemberships{status: tenants.StatusPendingInvite, tenantStatus: tenants.TenantActive},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason:  ReasonMembershipPending,
		},
		{
			name:        "disabled membership never reaches permissions",
			memberships: stubMemberships{status: tenants.StatusDisabled, tenantStatus: tenants.TenantActive},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason:  ReasonMembershipDisabled,
		},
		{
			name:        "membership store failure",
			memberships: stubMemberships{statusErr: errStore},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), TenantID: tenant(5)},
			wantErr:     true,
		},
		{
			name:        "suspended tenant",
			memberships: stubMemberships{status: tenants.StatusActive, tenantStatus: tenants.TenantSuspended},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)},
			wantReason:  ReasonTenantSuspended,
		},
		{
			name:        "session bound to another tenant",
			memberships: activeMemberships(),
			perms:       &stubPermissions{granted: true},
			req: Request{
				Principal:   &auth.Principal{User: &auth.User{ID: 1}, SessionID: "sess-1", SessionTenantID: tenant(6)},
				Permissions: []string{rbac.PermDealsView},
				TenantID:    tenant(5),
			},
			wantReason: ReasonTenantMismatch,
		},
		{
			name:        "missing permission",
			memberships: activeMemberships(),
			perms:       &stubPermissions{granted: false},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsEdit}, TenantID: tenant(5)},
			wantReason:  ReasonMissingPermission,
			wantChecks:  1,
		},
		{
			name:        "resolver failure",
			memberships: activeMemberships(),
			perms:       &stubPermissions{err: errStore},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermDealsEdit}, TenantID: tenant(5)},
			wantErr:     true,
			wantChecks:  1,
		},
		{
			name:        "platform context skips membership",
			memberships: stubMemberships{statusErr: errStore},
			perms:       &stubPermissions{granted: true},
			req:         Request{Principal: principal(1), Permissions: []string{rbac.PermPlatformTenantsManage}},
			wantAllowed: true,
			wantChecks:  1,
		},
		{
			name:        "super-admin skips membership",
			memberships: stubMemberships{statusErr: autherr.NotFound("membership_not_found", "membership not found")},
			perms:       &stubPermissions{granted: true},
			req: Request{
				Principal:   &auth.Principal{User: &auth.User{ID: 9, GlobalRole: auth.GlobalRoleSuperAdmin}, SessionID: "sess-9"},
				Permissions: []string{rbac.PermDealsView},
				TenantID:    tenant(5),
			},
			wantAllowed: true,
			wantChecks:  1,
		},
		{
			name:        "membership-only request",
			memberships: activeMemberships(),
			perms:       &stubPermissions{},
			req:         Request{Principal: principal(1), TenantID: tenant(5)},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.sessions, tt.memberships, tt.perms)

			decision, err := gate.Authorize(context.Background(), tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAllowed, decision.Allowed)
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
			assert.Len(t, tt.perms.calls, tt.wantChecks)
		})
	}
}

func TestGate_Mode(t *testing.T) {
	perms := &stubPermissions{granted: true}
	gate := NewGate(stubSessions{}, activeMemberships(), perms)
	keys := []string{rbac.PermDealsView, rbac.PermDealsEdit}

	_, err := gate.Authorize(context.Background(), Request{Principal: principal(1), Permissions: keys, TenantID: tenant(5)})
	require.NoError(t, err)
	_, err = gate.Authorize(context.Background(), Request{Principal: principal(1), Permissions: keys, Mode: ModeAll, TenantID: tenant(5)})
	require.NoError(t, err)

	assert.Equal(t, []string{"any", "all"}, perms.calls)
}

func TestGate_Collaborators(t *testing.T) {
	read := Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5), ModuleKey: "CRM"}
	write := read
	write.Write = true

	tests := []struct {
		name       string
		opts       []Option
		req        Request
		wantReason DenyReason
		wantDetail string
	}{
		{
			name: "module enabled and full subscription",
			opts: []Option{WithModuleChecker(stubModules{enabled: true}), WithSubscriptionChecker(stubSubscriptions{access: SubscriptionAccess{HasAccess: true}})},
			req:  write,
		},
		{
			name:       "module disabled",
			opts:       []Option{WithModuleChecker(stubModules{enabled: false})},
			req:        read,
			wantReason: ReasonModuleDisabled,
			wantDetail: "module CRM is not enabled",
		},
		{
			name:       "module check error denies",
			opts:       []Option{WithModuleChecker(stubModules{err: errors.New("timeout")})},
			req:        read,
			wantReason: ReasonModuleDisabled,
		},
		{
			name: "module stage skipped without module key",
			opts: []Option{WithModuleChecker(stubModules{enabled: false})},
			req:  Request{Principal: principal(1), TenantID: tenant(5)},
		},
		{
			name:       "no subscription",
			opts:       []Option{WithSubscriptionChecker(stubSubscriptions{access: SubscriptionAccess{Reason: "trial ended"}})},
			req:        read,
			wantReason: ReasonNoSubscription,
			wantDetail: "trial ended",
		},
		{
			name:       "subscription check error denies",
			opts:       []Option{WithSubscriptionChecker(stubSubscriptions{err: errors.New("billing down")})},
			req:        read,
			wantReason: ReasonNoSubscription,
		},
		{
			name: "read-only subscription allows reads",
			opts: []Option{WithSubscriptionChecker(stubSubscriptions{access: SubscriptionAccess{HasAccess: true, IsReadOnly: true}})},
			req:  read,
		},
		{
			name:       "read-only subscription denies writes",
			opts:       []Option{WithSubscriptionChecker(stubSubscriptions{access: SubscriptionAccess{HasAccess: true, IsReadOnly: true}})},
			req:        write,
			wantReason: ReasonSubscriptionReadOnly,
			wantDetail: "subscription is read-only",
		},
		{
			name: "platform context skips collaborators",
			opts: []Option{WithModuleChecker(stubModules{}), WithSubscriptionChecker(stubSubscriptions{})},
			req:  Request{Principal: principal(1), Permissions: []string{rbac.PermPlatformUsersManage}, ModuleKey: "CRM", Write: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(stubSessions{}, activeMemberships(), &stubPermissions{granted: true}, tt.opts...)

			decision, err := gate.Authorize(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReason == "", decision.Allowed)
			assert.Equal(t, tt.wantReason, decision.Reason)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decision.Detail)
			}
		})
	}
}

func TestGate_CollaboratorsRunAfterPermissions(t *testing.T) {
	gate := NewGate(stubSessions{}, activeMemberships(), &stubPermissions{granted: false},
		WithModuleChecker(stubModules{enabled: false}))

	decision, err := gate.Authorize(context.Background(), Request{
		Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5), ModuleKey: "CRM",
	})
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingPermission, decision.Reason)
}

func TestDecision_Err(t *testing.T) {
	assert.NoError(t, Decision{Allowed: true}.Err())

	err := deny(ReasonUnauthenticated, "session is no longer valid").Err()
	assert.True(t, autherr.IsKind(err, autherr.KindUnauthenticated))

	err = deny(ReasonMembershipDisabled, "membership disabled").Err()
	assert.True(t, autherr.IsKind(err, autherr.KindUnauthorized))
	assert.Equal(t, "membership_disabled", autherr.ReasonOf(err))
	assert.Equal(t, "membership disabled", err.Error())
}

func TestGate_MetricsAndTracing(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	perms := &stubPermissions{granted: true}
	gate := NewGate(stubSessions{}, activeMemberships(), perms,
		WithMetrics(metrics), WithTracer(provider.Tracer("authz-test")))

	req := Request{Principal: principal(1), Permissions: []string{rbac.PermDealsView}, TenantID: tenant(5)}
	_, err := gate.Authorize(context.Background(), req)
	require.NoError(t, err)
	perms.granted = false
	_, err = gate.Authorize(context.Background(), req)
	require.NoError(t, err)
	perms.err = errors.New("connection reset")
	_, err = gate.Authorize(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("allow", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("deny", string(ReasonMissingPermission))))

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "authz.Authorize", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("homestead.allowed", true))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("homestead.tenant_id", 5))
	assert.Contains(t, spans[1].Attributes(), attribute.String("homestead.deny_reason", string(ReasonMissingPermission)))
	assert.Len(t, spans[2].Events(), 1, "error recorded on the span")
}
