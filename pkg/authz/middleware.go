package authz

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/contextkeys"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/observability"
)

const (
	// TenantVar is the mux route variable carrying the tenant
	TenantVar = "tenant_id"
	// TenantHeader carries the tenant on routes without a tenant path segment
	TenantHeader = "X-Tenant-ID"
)

// Requirement describes what a route needs from the gate
type Requirement struct {
	Permissions []string
	Mode        Mode
	ModuleKey   string
	Write       bool
	// Platform routes never take a tenant context
	Platform bool
}

// Middleware enforces Requirements on HTTP routes.
// It expects middleware.AuthMiddleware to have stored the principal.
type Middleware struct {
	gate   *Gate
	logger *observability.Logger
}

// NewMiddleware creates permission middleware over a gate
func NewMiddleware(gate *Gate, logger *observability.Logger) *Middleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Middleware{gate: gate, logger: logger}
}

// RequirePermission requires a single permission
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: []string{permission}})
}

// RequireAny requires at least one of the permissions
func (m *Middleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: permissions, Mode: ModeAny})
}

// RequireAll requires every permission
func (m *Middleware) RequireAll(permissions ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: permissions, Mode: ModeAll})
}

// RequireWrite requires every permission and a subscription allowing writes
func (m *Middleware) RequireWrite(permissions ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: permissions, Mode: ModeAll, Write: true})
}

// RequirePlatform requires a platform-context permission
func (m *Middleware) RequirePlatform(permission string) func(http.Handler) http.Handler {
	return m.Require(Requirement{Permissions: []string{permission}, Platform: true})
}

// Require enforces an arbitrary requirement
func (m *Middleware) Require(requirement Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := contextkeys.GetPrincipal(r.Context())

			var tenantID *int64
			if !requirement.Platform {
				var err error
				tenantID, err = requestTenant(r)
				if err != nil {
					m.logger.WithError(err).WithField("path", r.URL.Path).Debug("rejecting request with invalid tenant")
					httputil.WriteBadRequest(w, err.Error())
					return
				}
			}

			decision, err := m.gate.Authorize(r.Context(), Request{
				Principal:   principal,
				Permissions: requirement.Permissions,
				Mode:        requirement.Mode,
				TenantID:    tenantID,
				ModuleKey:   requirement.ModuleKey,
				Write:       requirement.Write,
			})
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !decision.Allowed {
				httputil.WriteAuthError(w, decision.Err())
				return
			}

			ctx := r.Context()
			if tenantID != nil {
				ctx = contextkeys.WithTenantID(ctx, *tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestTenant reads the tenant from the route, falling back to the header
func requestTenant(r *http.Request) (*int64, error) {
	if raw, ok := mux.Vars(r)[TenantVar]; ok {
		return httputil.ParseOptionalID(TenantVar, raw)
	}
	return httputil.ParseOptionalID(TenantVar, r.Header.Get(TenantHeader))
}
