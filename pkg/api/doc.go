// Package api exposes the authorization core over HTTP.
//
// Handlers are grouped by domain, each with a RegisterRoutes method, and
// stay thin: they parse the request, call one core service and map errors
// through httputil.WriteAuthError. Authentication and permission checks run
// as middleware in front of the handlers.
//
// Public routes (credential throttled):
//
//	POST /auth/login
//	POST /auth/refresh
//	POST /invitations/accept
//
// Authenticated routes:
//
//	POST   /auth/logout
//	GET    /tenants/{tenant_id}/members                        TENANT_MEMBERS_VIEW
//	GET    /tenants/{tenant_id}/members/{user_id}              TENANT_MEMBERS_VIEW
//	POST   /tenants/{tenant_id}/members/{user_id}/disable      TENANT_MEMBERS_MANAGE
//	POST   /tenants/{tenant_id}/members/{user_id}/enable       TENANT_MEMBERS_MANAGE
//	PUT    /tenants/{tenant_id}/members/{user_id}/roles        TENANT_MEMBERS_MANAGE
//	GET    /tenants/{tenant_id}/roles                          TENANT_ROLES_VIEW
//	POST   /tenants/{tenant_id}/invitations                    TENANT_INVITATIONS_MANAGE
//	GET    /tenants/{tenant_id}/invitations                    TENANT_INVITATIONS_MANAGE
//	POST   /tenants/{tenant_id}/invitations/{id}/resend        TENANT_INVITATIONS_MANAGE
//	DELETE /tenants/{tenant_id}/invitations/{id}               TENANT_INVITATIONS_MANAGE
//	POST   /tenants/{tenant_id}/suspend                        PLATFORM_TENANTS_MANAGE
//	POST   /tenants/{tenant_id}/reactivate                     PLATFORM_TENANTS_MANAGE
//	PUT    /roles/{id}/permissions                             PLATFORM_ROLES_MANAGE
//	POST   /users/{id}/reset-password                          PLATFORM_USERS_MANAGE
package api
