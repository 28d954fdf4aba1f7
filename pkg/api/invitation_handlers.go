package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/invitations"
	"github.com/platinummonkey/homestead/pkg/rbac"
)

// InvitationHandlers handles the invitation lifecycle
type InvitationHandlers struct {
	invitations *invitations.Service
}

// NewInvitationHandlers creates a new invitation handlers instance
func NewInvitationHandlers(invitations *invitations.Service) *InvitationHandlers {
	return &InvitationHandlers{invitations: invitations}
}

// RegisterRoutes registers invitation routes
func (h *InvitationHandlers) RegisterRoutes(router *mux.Router, g *guard) {
	manage := authz.Requirement{Permissions: []string{rbac.PermInvitationsManage}}

	action := func(event audit.EventType, idVar string) audit.Action {
		return audit.Action{Event: event, Resource: audit.ResourceInvitation, IDVar: idVar}
	}

	router.Handle("/tenants/{tenant_id}/invitations",
		g.record(action(audit.EventInvitationCreated, ""), g.require(manage, h.create))).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/invitations", g.require(manage, h.list)).Methods(http.MethodGet)
	router.Handle("/tenants/{tenant_id}/invitations/{id}/resend",
		g.record(action(audit.EventInvitationResent, "id"), g.require(manage, h.resend))).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/invitations/{id}",
		g.record(action(audit.EventInvitationRevoked, "id"), g.require(manage, h.revoke))).Methods(http.MethodDelete)
	router.Handle("/invitations/accept",
		g.record(action(audit.EventInvitationAccepted, ""), g.throttled(h.accept))).Methods(http.MethodPost)
}

// create handles POST /tenants/{tenant_id}/invitations
func (h *InvitationHandlers) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, token, err := h.invitations.Create(r.Context(), invitations.CreateRequest{
		TenantID:  tenantID,
		Email:     req.Email,
		RoleIDs:   req.RoleIDs,
		InvitedBy: actorID(r),
	})
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusCreated, InvitationResponse{Invitation: inv, Token: token})
}

// list handles GET /tenants/{tenant_id}/invitations[?status=PENDING]
func (h *InvitationHandlers) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var status *invitations.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := invitations.Status(strings.ToUpper(raw))
		switch s {
		case invitations.StatusPending, invitations.StatusAccepted, invitations.StatusExpired, invitations.StatusRevoked:
			status = &s
		default:
			httputil.WriteBadRequest(w, "invalid status filter: "+raw)
			return
		}
	}

	list, err := h.invitations.ListByTenant(r.Context(), tenantID, status)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	if list == nil {
		list = []invitations.Invitation{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, InvitationsResponse{Invitations: list})
}

// resend handles POST /tenants/{tenant_id}/invitations/{id}/resend
func (h *InvitationHandlers) resend(w http.ResponseWriter, r *http.Request) {
	tenantID, invitationID, ok := invitationParams(w, r)
	if !ok {
		return
	}
	inv, token, err := h.invitations.Resend(r.Context(), tenantID, invitationID)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, InvitationResponse{Invitation: inv, Token: token})
}

// revoke handles DELETE /tenants/{tenant_id}/invitations/{id}
func (h *InvitationHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	tenantID, invitationID, ok := invitationParams(w, r)
	if !ok {
		return
	}
	if err := h.invitations.Revoke(r.Context(), tenantID, invitationID, actorID(r)); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// accept handles POST /invitations/accept
func (h *InvitationHandlers) accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	result, err := h.invitations.Accept(r.Context(), req.Token, req.Password, req.DisplayName)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, result)
}

func invitationParams(w http.ResponseWriter, r *http.Request) (tenantID, invitationID int64, ok bool) {
	if tenantID, ok = tenantFrom(w, r); !ok {
		return 0, 0, false
	}
	if invitationID, ok = httputil.ParsePathInt64OrError(w, r, "id"); !ok {
		return 0, 0, false
	}
	return tenantID, invitationID, true
}
