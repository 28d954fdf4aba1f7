package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/sessions"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// AdminHandlers handles platform-context administration
type AdminHandlers struct {
	tenants  *tenants.Service
	rbac     *rbac.Service
	sessions *sessions.Service
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(tenants *tenants.Service, rbac *rbac.Service, sessions *sessions.Service) *AdminHandlers {
	return &AdminHandlers{tenants: tenants, rbac: rbac, sessions: sessions}
}

// RegisterRoutes registers platform administration routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router, g *guard) {
	platform := func(permission string) authz.Requirement {
		return authz.Requirement{Permissions: []string{permission}, Platform: true}
	}

	tenantAction := func(event audit.EventType) audit.Action {
		return audit.Action{Event: event, Resource: audit.ResourceTenant, IDVar: "tenant_id"}
	}

	router.Handle("/tenants/{tenant_id}/suspend", g.record(tenantAction(audit.EventTenantSuspended),
		g.require(platform(rbac.PermPlatformTenantsManage), h.suspendTenant))).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/reactivate", g.record(tenantAction(audit.EventTenantReactivated),
		g.require(platform(rbac.PermPlatformTenantsManage), h.reactivateTenant))).Methods(http.MethodPost)
	router.Handle("/roles/{id}/permissions",
		g.record(audit.Action{Event: audit.EventRolePermissionsUpdated, Resource: audit.ResourceRole, IDVar: "id"},
			g.require(platform(rbac.PermPlatformRolesManage), h.setRolePermissions))).Methods(http.MethodPut)
	router.Handle("/users/{id}/reset-password",
		g.record(audit.Action{Event: audit.EventAuthPasswordReset, Resource: audit.ResourceUser, IDVar: "id"},
			g.require(platform(rbac.PermPlatformUsersManage), h.resetPassword))).Methods(http.MethodPost)
}

// suspendTenant handles POST /tenants/{tenant_id}/suspend
func (h *AdminHandlers) suspendTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	if err := h.tenants.SuspendTenant(r.Context(), tenantID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// reactivateTenant handles POST /tenants/{tenant_id}/reactivate
func (h *AdminHandlers) reactivateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	if err := h.tenants.ReactivateTenant(r.Context(), tenantID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// setRolePermissions handles PUT /roles/{id}/permissions
func (h *AdminHandlers) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req SetPermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// resetPassword handles POST /users/{id}/reset-password
func (h *AdminHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.sessions.ResetPassword(r.Context(), userID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
