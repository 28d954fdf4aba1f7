package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/middleware"
	"github.com/platinummonkey/homestead/pkg/sessions"
)

// AuthHandlers handles login, refresh and logout
type AuthHandlers struct {
	sessions *sessions.Service
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(sessions *sessions.Service) *AuthHandlers {
	return &AuthHandlers{sessions: sessions}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, g *guard) {
	router.Handle("/auth/login", g.record(audit.Action{Event: audit.EventAuthLogin, Resource: audit.ResourceSession},
		g.throttled(h.login))).Methods(http.MethodPost)
	router.Handle("/auth/refresh", g.record(audit.Action{Event: audit.EventAuthRefresh, Resource: audit.ResourceSession},
		g.throttled(h.refresh))).Methods(http.MethodPost)
	router.Handle("/auth/logout", g.record(audit.Action{Event: audit.EventAuthLogout, Resource: audit.ResourceSession},
		g.authenticated(h.logout))).Methods(http.MethodPost)
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	tokens, err := h.sessions.Login(r.Context(), req.Email, req.Password, req.TenantID)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, tokens)
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, tokens)
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if err := h.sessions.Logout(r.Context(), principal.SessionID); err != nil {
		httputil.WriteAuthError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
