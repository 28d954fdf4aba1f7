// Package tenants stores tenants and drives the membership lifecycle.
//
// A membership moves PENDING_INVITE -> ACTIVE on invitation acceptance and
// ACTIVE <-> DISABLED by administrators. Memberships are never deleted.
// Disabling a member revokes all of the user's sessions in the same
// transaction; every transition invalidates the user's cached permission
// sets before returning.
package tenants
