// Package authz is the request-time authorization gate.
//
// Gate.Authorize composes session validity, tenant membership, the
// permission resolver and the optional module and subscription
// collaborators into one allow or deny decision. Stages run strictly in
// order and the first deny wins:
//
//  1. the principal's session is valid and unrevoked
//  2. a tenant-scoped request needs an ACTIVE membership in an active tenant
//  3. the resolver grants the required permissions (any or all)
//  4. the tenant has the module enabled and a subscription allowing the access
//
// A member whose membership was disabled is therefore rejected before any
// cached permission set is consulted.
//
// The HTTP middleware wraps the gate for gorilla/mux routes:
//
//	perms := authz.NewMiddleware(gate, logger)
//	router.Handle("/tenants/{tenant_id}/members",
//		perms.RequirePermission(rbac.PermMembersView)(listMembers))
package authz
