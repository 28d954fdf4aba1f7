package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/contextkeys"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/observability"
)

// Authenticator turns an access token into a principal.
// sessions.Service is the production implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
}

// AuthMiddleware provides bearer authentication
type AuthMiddleware struct {
	authenticator Authenticator
	optional      bool // If true, allow requests without auth
	logger        *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator, optional bool, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		optional:      optional,
		logger:        logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			unauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.authenticator.Authenticate(r.Context(), parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("bearer authentication failed")
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the authenticated principal from the request
func GetPrincipal(r *http.Request) *auth.Principal {
	principal, ok := contextkeys.GetPrincipal(r.Context())
	if !ok {
		return nil
	}
	return principal
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="homestead"`)
	httputil.WriteReason(w, http.StatusUnauthorized, "unauthenticated", message)
}
