package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/rbac"
)

// auditFixture seeds acme with a denied and an allowed disable, and
// suspends bayside as the super admin
type auditFixture struct {
	*apiFixture
	auditor, root string
	target, agent int64
}

func newAuditFixture(t *testing.T) *auditFixture {
	t.Helper()
	ctx := context.Background()
	f := &auditFixture{apiFixture: newAPIFixture(t, ServerConfig{})}

	auditorRole := f.createRole(t, "Auditor", rbac.ScopeTenant, rbac.PermAuditView)
	auditor := f.createUser(t, "auditor@acme.test", auth.GlobalRoleUser)
	f.target = f.createUser(t, "target@acme.test", auth.GlobalRoleUser)
	f.agent = f.createUser(t, "agent@acme.test", auth.GlobalRoleUser)
	for user, role := range map[int64]int64{auditor: auditorRole.ID, f.target: f.apiFixture.agent.ID, f.agent: f.apiFixture.agent.ID} {
		_, err := f.svc.Tenants.CreateActiveMembership(ctx, user, f.acme, []int64{role})
		require.NoError(t, err)
	}

	f.auditor = f.login(t, "auditor@acme.test", testPassword).AccessToken
	f.root = f.login(t, "root@homestead.test", testPassword).AccessToken
	admin := f.login(t, "admin@acme.test", testPassword).AccessToken
	agent := f.login(t, "agent@acme.test", testPassword).AccessToken

	disable := f.tenantPath(f.acme, "/members/"+itoa(f.target)+"/disable")
	assertError(t, f.do(t, http.MethodPost, disable, agent, nil), http.StatusForbidden, "missing_permission")
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, disable, admin, nil).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, f.tenantPath(f.bayside, "/suspend"), f.root, nil).Code)
	return f
}

func (f *auditFixture) events(t *testing.T, path, token string) AuditEventsResponse {
	t.Helper()
	w := f.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AuditEventsResponse
	decode(t, w, &resp)
	return resp
}

func TestAuditTenantTrail(t *testing.T) {
	f := newAuditFixture(t)

	resp := f.events(t, f.tenantPath(f.acme, "/audit"), f.auditor)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, audit.DefaultLimit, resp.Limit)

	// Newest first
	allowed, denied := resp.Events[0], resp.Events[1]
	assert.Equal(t, audit.EventMembershipDisabled, allowed.EventType)
	assert.Equal(t, audit.StatusSuccess, allowed.Status)
	assert.Equal(t, f.admin, *allowed.ActorID)
	assert.Equal(t, itoa(f.target), allowed.ResourceID)
	assert.Equal(t, audit.ResourceMembership, allowed.ResourceType)
	assert.Equal(t, http.StatusNoContent, allowed.StatusCode)
	assert.Equal(t, "192.0.2.10", allowed.IPAddress)

	assert.Equal(t, audit.StatusDenied, denied.Status)
	assert.Equal(t, f.agent, *denied.ActorID)
	assert.Equal(t, f.acme, *denied.TenantID)
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)

	resp = f.events(t, f.tenantPath(f.acme, "/audit?status=denied"), f.auditor)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, f.agent, *resp.Events[0].ActorID)

	resp = f.events(t, f.tenantPath(f.acme, "/audit?actor_id="+itoa(f.admin)), f.auditor)
	require.Len(t, resp.Events, 1)

	resp = f.events(t, f.tenantPath(f.acme, "/audit?event_type=tenant.suspended"), f.auditor)
	assert.Empty(t, resp.Events)

	resp = f.events(t, f.tenantPath(f.acme, "/audit?limit=1&offset=1"), f.auditor)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, audit.StatusDenied, resp.Events[0].Status)
}

func TestAuditTenantTrailScoping(t *testing.T) {
	f := newAuditFixture(t)

	// The path tenant wins over any tenant_id query parameter
	resp := f.events(t, f.tenantPath(f.acme, "/audit?tenant_id="+itoa(f.bayside)), f.auditor)
	for _, event := range resp.Events {
		assert.Equal(t, f.acme, *event.TenantID)
	}

	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.bayside, "/audit"), f.auditor, nil), http.StatusForbidden, "")

	admin := f.login(t, "admin@acme.test", testPassword).AccessToken
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/audit"), admin, nil), http.StatusForbidden, "missing_permission")
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/audit"), "", nil), http.StatusUnauthorized, "unauthenticated")
}

func TestAuditFilterValidation(t *testing.T) {
	f := newAuditFixture(t)

	for _, query := range []string{
		"status=maybe",
		"since=yesterday",
		"until=" + url.QueryEscape("2026-03-01"),
		"limit=-1",
		"offset=abc",
		"actor_id=zero",
		"format=xml",
	} {
		t.Run(query, func(t *testing.T) {
			assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/audit?"+query), f.auditor, nil), http.StatusBadRequest, "")
		})
	}
}

func TestAuditExportFormats(t *testing.T) {
	f := newAuditFixture(t)

	w := f.do(t, http.MethodGet, f.tenantPath(f.acme, "/audit?format=csv"), f.auditor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,occurred_at,event_type"))
	assert.Contains(t, lines[1], string(audit.EventMembershipDisabled))

	w = f.do(t, http.MethodGet, f.tenantPath(f.acme, "/audit?format=ndjson&status=denied"), f.auditor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 1)
	assert.Contains(t, w.Body.String(), `"status":"denied"`)
}

func TestAuditPlatformTrail(t *testing.T) {
	f := newAuditFixture(t)

	resp := f.events(t, "/audit?event_type=tenant.suspended", f.root)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, f.bayside, *resp.Events[0].TenantID)
	assert.Equal(t, f.apiFixture.root, *resp.Events[0].ActorID)

	resp = f.events(t, "/audit?tenant_id="+itoa(f.acme), f.root)
	assert.Len(t, resp.Events, 2)

	// Login events carry no tenant and show up only unfiltered
	resp = f.events(t, "/audit?event_type=auth.login", f.root)
	assert.NotEmpty(t, resp.Events)
	for _, event := range resp.Events {
		assert.Nil(t, event.TenantID)
		assert.Equal(t, audit.ResourceSession, event.ResourceType)
	}

	assertError(t, f.do(t, http.MethodGet, "/audit", f.auditor, nil), http.StatusForbidden, "missing_permission")
	assertError(t, f.do(t, http.MethodGet, "/audit?tenant_id=x", f.root, nil), http.StatusBadRequest, "")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
