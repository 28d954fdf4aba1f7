package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// MemberHandlers handles tenant membership administration
type MemberHandlers struct {
	tenants *tenants.Service
	roles   *rbac.Store
}

// NewMemberHandlers creates a new member handlers instance
func NewMemberHandlers(tenants *tenants.Service, roles *rbac.Store) *MemberHandlers {
	return &MemberHandlers{tenants: tenants, roles: roles}
}

// RegisterRoutes registers membership routes
func (h *MemberHandlers) RegisterRoutes(router *mux.Router, g *guard) {
	view := authz.Requirement{Permissions: []string{rbac.PermMembersView}}
	manage := authz.Requirement{Permissions: []string{rbac.PermMembersManage}}

	router.Handle("/tenants/{tenant_id}/members", g.require(view, h.list)).Methods(http.MethodGet)
	router.Handle("/tenants/{tenant_id}/members/{user_id}", g.require(view, h.get)).Methods(http.MethodGet)
	action := func(event audit.EventType) audit.Action {
		return audit.Action{Event: event, Resource: audit.ResourceMembership, IDVar: "user_id"}
	}

	router.Handle("/tenants/{tenant_id}/members/{user_id}/disable",
		g.record(action(audit.EventMembershipDisabled), g.require(manage, h.disable))).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/members/{user_id}/enable",
		g.record(action(audit.EventMembershipEnabled), g.require(manage, h.enable))).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/members/{user_id}/roles",
		g.record(action(audit.EventMembershipRolesUpdated), g.require(manage, h.updateRoles))).Methods(http.MethodPut)
	router.Handle("/tenants/{tenant_id}/roles",
		g.require(authz.Requirement{Permissions: []string{rbac.PermRolesView}}, h.listRoles)).Methods(http.MethodGet)
}

// list handles GET /tenants/{tenant_id}/members
func (h *MemberHandlers) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	members, err := h.tenants.List(r.Context(), tenantID)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	if members == nil {
		members = []tenants.Membership{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, MembersResponse{Members: members})
}

// get handles GET /tenants/{tenant_id}/members/{user_id}
func (h *MemberHandlers) get(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	detail, err := h.tenants.GetByID(r.Context(), userID, tenantID)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, detail)
}

// disable handles POST /tenants/{tenant_id}/members/{user_id}/disable
func (h *MemberHandlers) disable(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	if err := h.tenants.Disable(r.Context(), userID, tenantID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// enable handles POST /tenants/{tenant_id}/members/{user_id}/enable
func (h *MemberHandlers) enable(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	if err := h.tenants.Enable(r.Context(), userID, tenantID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// updateRoles handles PUT /tenants/{tenant_id}/members/{user_id}/roles
func (h *MemberHandlers) updateRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	var req UpdateRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	roles, err := h.tenants.UpdateRoles(r.Context(), userID, tenantID, req.RoleIDs, actorID(r))
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

// listRoles handles GET /tenants/{tenant_id}/roles
func (h *MemberHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	roles, err := h.roles.ListRoles(r.Context(), &tenantID)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func memberParams(w http.ResponseWriter, r *http.Request) (tenantID, userID int64, ok bool) {
	if tenantID, ok = tenantFrom(w, r); !ok {
		return 0, 0, false
	}
	if userID, ok = httputil.ParsePathInt64OrError(w, r, "user_id"); !ok {
		return 0, 0, false
	}
	return tenantID, userID, true
}
