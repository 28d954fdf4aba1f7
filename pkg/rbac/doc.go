// Package rbac provides role-based access control for Homestead tenants.
//
// # Overview
//
// Permissions are opaque keys namespaced by product module (for example
// CRM_DEALS_VIEW). Roles are named bundles of permissions. A role is either
// PLATFORM scoped, granting platform-administration abilities outside any
// tenant, or TENANT scoped, granting abilities inside exactly one tenant.
// A user's assignment of a role records the tenant it applies to; PLATFORM
// assignments carry no tenant.
//
// # Scope Matching
//
// Every resolution happens for a SubjectKey: a user in the platform
// context, or a user inside one tenant. Matches is the single rule deciding
// which assignments count:
//
//	platform context: PLATFORM roles assigned without a tenant
//	tenant context:   TENANT roles assigned for that same tenant
//
// Nothing else ever contributes, so tenant grants never leak into the
// platform context or into another tenant.
//
// # Resolver
//
// Resolver computes the effective PermissionSet for a SubjectKey and caches
// it with a TTL (five minutes by default). Super-admins receive every
// permission key in the catalog regardless of context.
//
//	resolver := rbac.NewResolver(store, rbac.WithCache(rbac.NewMemoryCache(10000)))
//	ok, err := resolver.HasAny(ctx, userID, &tenantID, rbac.PermDealsView, rbac.PermDealsEdit)
//
// # Invalidation
//
// Mutations made through Service (GrantRole, RevokeRole,
// SetRolePermissions, AddPermissionsToRole, CreatePermission) invalidate the
// affected cache entries before returning. Changing a role's bundle fans out
// to every current holder of the role and to every cached entry that was
// computed from it. Services that change assignments directly in a
// transaction call InvalidateUser after commit.
//
// A resolver-wide generation counter stops a computation that began before
// an invalidation from writing its result afterwards.
//
// # Cache Failures
//
// Cache errors are logged and the set is recomputed from the store. A cache
// outage never produces a deny-all or grant-all answer.
//
// # Cache Backends
//
// MemoryCache keeps entries in a bounded LRU (hashicorp/golang-lru) with
// per-user and per-role indexes. RedisCache shares entries between
// processes; staleness across processes is bounded by the TTL.
package rbac
