// Package contextkeys holds the request context keys shared by the HTTP layers.
//
// All keys used across packages are defined here so middleware and handlers
// agree on types:
//
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, ok := contextkeys.GetPrincipal(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/homestead/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware
	// Required by: authz middleware, tenant and invitation handlers
	PrincipalKey Key = "principal"

	// TenantIDKey contains the int64 tenant asserted by the request
	// Set by: authz middleware once the gate allowed the request
	TenantIDKey Key = "tenant_id"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal retrieves the authenticated principal from the context
func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(*auth.Principal)
	return principal, ok && principal != nil
}

// WithTenantID adds the asserted tenant to the context
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// GetTenantID retrieves the asserted tenant from the context
func GetTenantID(ctx context.Context) (int64, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(int64)
	return tenantID, ok
}
