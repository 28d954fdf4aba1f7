// Package middleware provides the HTTP middleware in front of the API:
// bearer authentication and credential-endpoint throttling.
//
// AuthMiddleware resolves the Authorization header into an *auth.Principal
// and stores it in the request context:
//
//	authn := middleware.NewAuthMiddleware(sessionService, false, logger)
//	router.Use(authn.Handler)
//
// Throttle bounds login, refresh and invitation-acceptance attempts per
// client address. MemoryLimiter serves a single process; RedisLimiter shares
// the counters across instances. Limiter failures fail open and are logged.
//
// Permission checks live in package authz.
package middleware
