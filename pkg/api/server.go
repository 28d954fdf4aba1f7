package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/contextkeys"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/invitations"
	"github.com/platinummonkey/homestead/pkg/middleware"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/sessions"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// maxBodyBytes bounds request bodies; every body here is a small JSON document
const maxBodyBytes = 1 << 20

// Services are the core services behind the API
type Services struct {
	Sessions    *sessions.Service
	Tenants     *tenants.Service
	Invitations *invitations.Service
	RBAC        *rbac.Service
	// Audit serves the audit trail routes; nil disables them
	Audit *audit.Store
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	// Limiter throttles the credential endpoints; nil disables throttling
	Limiter  middleware.Limiter
	Throttle middleware.ThrottleConfig
	Logger   *observability.Logger
	// AuditLog receives one event per mutating request. It defaults to
	// Services.Audit; with both nil nothing is recorded.
	AuditLog audit.Logger
}

// Server is the HTTP API
type Server struct {
	router *mux.Router
}

// guard applies authentication and permission requirements to handlers
type guard struct {
	authn    *middleware.AuthMiddleware
	perms    *authz.Middleware
	throttle func(http.Handler) http.Handler
	audit    *audit.Recorder
}

func (g *guard) require(requirement authz.Requirement, h http.HandlerFunc) http.Handler {
	return g.authn.Handler(audit.Capture(g.perms.Require(requirement)(h)))
}

func (g *guard) authenticated(h http.HandlerFunc) http.Handler {
	return g.authn.Handler(audit.Capture(h))
}

// record audits h as action, including requests the inner guards refuse
func (g *guard) record(action audit.Action, h http.Handler) http.Handler {
	if g.audit == nil {
		return h
	}
	return g.audit.Handler(action, h)
}

func (g *guard) throttled(h http.HandlerFunc) http.Handler {
	return g.throttle(h)
}

// NewServer creates the API server and registers every route
func NewServer(svc Services, gate *authz.Gate, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	g := &guard{
		authn:    middleware.NewAuthMiddleware(svc.Sessions, false, logger),
		perms:    authz.NewMiddleware(gate, logger),
		throttle: func(next http.Handler) http.Handler { return next },
	}
	if cfg.Limiter != nil {
		g.throttle = middleware.Throttle(cfg.Limiter, cfg.Throttle, logger)
	}
	auditLog := cfg.AuditLog
	if auditLog == nil && svc.Audit != nil {
		auditLog = svc.Audit
	}
	if auditLog != nil {
		g.audit = audit.NewRecorder(auditLog, logger)
	}

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)

	NewAuthHandlers(svc.Sessions).RegisterRoutes(router, g)
	NewMemberHandlers(svc.Tenants, svc.RBAC.Store()).RegisterRoutes(router, g)
	NewInvitationHandlers(svc.Invitations).RegisterRoutes(router, g)
	NewAdminHandlers(svc.Tenants, svc.RBAC, svc.Sessions).RegisterRoutes(router, g)
	if svc.Audit != nil {
		NewAuditHandlers(svc.Audit).RegisterRoutes(router, g)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})

	return &Server{router: router}
}

// Router exposes the mux router so the process can mount extra endpoints
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// tenantFrom returns the tenant the permission middleware asserted, or the
// route variable on platform routes
func tenantFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if tenantID, ok := contextkeys.GetTenantID(r.Context()); ok {
		return tenantID, true
	}
	return httputil.ParsePathInt64OrError(w, r, authz.TenantVar)
}

// actorID returns the authenticated user's id, if any
func actorID(r *http.Request) *int64 {
	p := middleware.GetPrincipal(r)
	if p == nil {
		return nil
	}
	id := p.UserID()
	return &id
}
