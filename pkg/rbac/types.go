package rbac

import (
	"sort"
	"strconv"
	"time"
)

// Scope is where a role's permissions apply
type Scope string

const (
	ScopePlatform Scope = "PLATFORM"
	ScopeTenant   Scope = "TENANT"
)

// Valid reports whether the scope is known
func (s Scope) Valid() bool {
	return s == ScopePlatform || s == ScopeTenant
}

// Role is a named bundle of permissions
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Scope       Scope  `json:"scope"`
	// TenantID is set for tenant-custom roles and nil for shared definitions
	TenantID  *int64    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission is an immutable, opaque capability key
type Permission struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment binds a role to a user, optionally within a tenant
type Assignment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	RoleScope Scope     `json:"role_scope"`
	TenantID  *int64    `json:"tenant_id,omitempty"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// SubjectKind distinguishes platform from tenant resolution
type SubjectKind int

const (
	SubjectPlatform SubjectKind = iota
	SubjectTenant
)

// SubjectKey identifies one resolution context for one user
type SubjectKey struct {
	UserID   int64
	Kind     SubjectKind
	TenantID int64
}

// PlatformKey is the platform context for a user
func PlatformKey(userID int64) SubjectKey {
	return SubjectKey{UserID: userID, Kind: SubjectPlatform}
}

// TenantKey is the context of a user inside one tenant
func TenantKey(userID, tenantID int64) SubjectKey {
	return SubjectKey{UserID: userID, Kind: SubjectTenant, TenantID: tenantID}
}

// KeyFor builds the key for an optional tenant
func KeyFor(userID int64, tenantID *int64) SubjectKey {
	if tenantID == nil {
		return PlatformKey(userID)
	}
	return TenantKey(userID, *tenantID)
}

func (k SubjectKey) String() string {
	user := strconv.FormatInt(k.UserID, 10)
	if k.Kind == SubjectTenant {
		return user + ":tenant:" + strconv.FormatInt(k.TenantID, 10)
	}
	return user + ":platform"
}

// PermissionSet is a set of permission keys
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether the set contains key
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// HasAny reports whether the set contains at least one of keys
func (s PermissionSet) HasAny(keys ...string) bool {
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains every key. An empty list is
// vacuously satisfied.
func (s PermissionSet) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Keys returns the keys in sorted order
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
