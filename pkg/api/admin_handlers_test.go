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

func TestAdminRoutes_TenantSuspension(t *testing.T) {
	f := newAPIFixture(t, ServerConfig{})
	admin := f.login(t, "admin@acme.test", testPassword).AccessToken
	root := f.login(t, "root@homestead.test", testPassword).AccessToken

	assertError(t, f.do(t, http.MethodPost, f.tenantPath(f.acme, "/suspend"), admin, nil), http.StatusForbidden, "missing_permission")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, f.tenantPath(f.acme, "/suspend"), root, nil).Code)
	status, err := f.svc.Tenants.TenantStatus(context.Background(), f.acme)
	require.NoError(t, err)
	assert.Equal(t, tenants.TenantSuspended, status)

	// Suspension ends the sessions of the tenant's members
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), admin, nil), http.StatusUnauthorized, "unauthenticated")
	assertError(t, f.do(t, http.MethodPost, f.tenantPath(f.acme, "/suspend"), root, nil), http.StatusConflict, "")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, f.tenantPath(f.acme, "/reactivate"), root, nil).Code)
	admin = f.login(t, "admin@acme.test", testPassword).AccessToken
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/members"), admin, nil).Code)
}

func TestAdminRoutes_PlatformRoleHolder(t *testing.T) {
	f := newAPIFixture(t, ServerConfig{})
	opsUser := f.createUser(t, "ops@homestead.test", "user")
	require.NoError(t, f.svc.RBAC.GrantRole(context.Background(), &rbac.Assignment{UserID: opsUser, RoleID: f.ops.ID}))
	ops := f.login(t, "ops@homestead.test", testPassword).AccessToken

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, f.tenantPath(f.bayside, "/suspend"), ops, nil).Code)
	assertError(t, f.do(t, http.MethodPut, fmt.Sprintf("/roles/%d/permissions", f.agent.ID), ops,
		SetPermissionsRequest{Permissions: []string{rbac.PermDealsEdit}}), http.StatusForbidden, "missing_permission")
}

func TestAdminRoutes_RolesAndPasswords(t *testing.T) {
	f := newAPIFixture(t, ServerConfig{})
	ctx := context.Background()
	carol := f.createUser(t, "carol@acme.test", "user")
	_, err := f.svc.Tenants.CreateActiveMembership(ctx, carol, f.acme, []int64{f.agent.ID})
	require.NoError(t, err)
	root := f.login(t, "root@homestead.test", testPassword).AccessToken
	carolToken := f.login(t, "carol@acme.test", testPassword).AccessToken

	ok, err := f.svc.RBAC.Resolver().HasPermission(ctx, carol, &f.acme, rbac.PermDealsEdit)
	require.NoError(t, err)
	require.False(t, ok)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, fmt.Sprintf("/roles/%d/permissions", f.agent.ID), root,
		SetPermissionsRequest{Permissions: []string{rbac.PermDealsView, rbac.PermDealsEdit}}).Code)
	ok, err = f.svc.RBAC.Resolver().HasPermission(ctx, carol, &f.acme, rbac.PermDealsEdit)
	require.NoError(t, err)
	assert.True(t, ok)

	assertError(t, f.do(t, http.MethodPut, "/roles/9999/permissions", root, SetPermissionsRequest{}), http.StatusNotFound, "")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, fmt.Sprintf("/users/%d/reset-password", carol), root, nil).Code)
	assertError(t, f.do(t, http.MethodGet, f.tenantPath(f.acme, "/roles"), carolToken, nil), http.StatusUnauthorized, "unauthenticated")
	assertError(t, f.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "carol@acme.test", Password: testPassword}),
		http.StatusUnauthorized, "")
	assertError(t, f.do(t, http.MethodPost, "/users/9999/reset-password", root, nil), http.StatusNotFound, "")
}
