package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

func TestMemberRoutes(t *testing.T) {
	f := newAPIFixture(t, ServerConfig{})
	ctx := context.Background()
	carol := f.createUser(t, "carol@acme.test", "user")
	_, err := f.svc.Tenants.CreateActiveMembership(ctx, carol, f.acme, []int64{f.agent.ID})
	require.NoError(t, err)

	admin := f.login(t, "admin@acme.test", testPassword).AccessToken
	carolToken := f.login(t, "carol@acme.test", testPassword).AccessToken
	member := func(suffix string) string {
		return f.tenantPath(f.acme, fmt.Sprintf("/members/%d%s", carol, suffix))
	}

	w := f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list MembersResponse
	decode(t, w, &list)
	assert.Len(t, list.Members, 2)

	w = f.do(t, http.MethodGet, member(""), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail tenants.MemberDetail
	decode(t, w, &detail)
	assert.Equal(t, tenants.StatusActive, detail.Status)
	require.Len(t, detail.Roles, 1)
	assert.Equal(t, "Agent", detail.Roles[0].Name)

	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members/9999"), admin, nil), http.StatusNotFound, "membership_not_found")

	w = f.do(t, http.MethodGet, f.tenantPath(f.acme, "/roles"), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roles RolesResponse
	decode(t, w, &roles)
	for _, role := range roles.Roles {
		assert.Equal(t, rbac.ScopeTenant, role.Scope)
	}

	assertError(t, f.do(t, http.MethodPut, member("/roles"), admin, UpdateRolesRequest{RoleIDs: []int64{f.ops.ID}}),
		http.StatusConflict, "role_not_tenant_scoped")

	w = f.do(t, http.MethodPut, member("/roles"), admin, UpdateRolesRequest{RoleIDs: []int64{f.agent.ID, f.tenantAdmin.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &roles)
	assert.Len(t, roles.Roles, 2)

	// The promotion is visible on carol's next request
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), carolToken, nil).Code)

	w = f.do(t, http.MethodPut, member("/roles"), admin, UpdateRolesRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"roles":[]}`, w.Body.String())

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, member("/disable"), admin, nil).Code)
	assertError(t, f.do(t, http.MethodPost, member("/disable"), admin, nil), http.StatusConflict, "membership_disabled")
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), carolToken, nil), http.StatusUnauthorized, "unauthenticated")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, member("/enable"), admin, nil).Code)
	assertError(t, f.do(t, http.MethodPost, member("/enable"), admin, nil), http.StatusConflict, "membership_active")
}

func TestMemberRoutes_Denials(t *testing.T) {
	f := newAPIFixture(t, ServerConfig{})
	admin := f.login(t, "admin@acme.test", testPassword).AccessToken

	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), "", nil), http.StatusUnauthorized, "unauthenticated")
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), "not-a-token", nil), http.StatusUnauthorized, "unauthenticated")
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.bayside, "/members"), admin, nil), http.StatusForbidden, "no_membership")
	assertError(t, f.do(t, http.MethodGet, "/tenants/abc/members", admin, nil), http.StatusBadRequest, "")

	// Super-admins administer any tenant without a membership
	root := f.login(t, "root@homestead.test", testPassword).AccessToken
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, f.tenantPath(f.bayside, "/members"), root, nil).Code)
}
