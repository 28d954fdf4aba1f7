package rbac

import (
	"context"
)

// Service applies role and permission changes and invalidates affected
// permission sets before returning
type Service struct {
	store    *Store
	resolver *Resolver
}

// NewService creates a new RBAC service
func NewService(store *Store, resolver *Resolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// Store returns the underlying store
func (s *Service) Store() *Store {
	return s.store
}

// Resolver returns the permission resolver
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// CreatePermission adds a key to the catalog. Super-admin sets cover the
// whole catalog, so every cached set is dropped.
func (s *Service) CreatePermission(ctx context.Context, perm *Permission) error {
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return err
	}
	s.resolver.Purge(ctx)
	return nil
}

// EnsureCatalog seeds missing catalog keys
func (s *Service) EnsureCatalog(ctx context.Context, perms []Permission) ([]string, error) {
	created, err := s.store.EnsurePermissions(ctx, perms)
	if len(created) > 0 {
		s.resolver.Purge(ctx)
	}
	return created, err
}

// CreateRole creates a role definition
func (s *Service) CreateRole(ctx context.Context, role *Role) error {
	return s.store.CreateRole(ctx, role)
}

// GrantRole assigns a role and invalidates the grantee
func (s *Service) GrantRole(ctx context.Context, a *Assignment) error {
	if err := s.store.GrantRole(ctx, a); err != nil {
		return err
	}
	s.resolver.InvalidateUser(ctx, a.UserID)
	return nil
}

// RevokeRole removes an assignment and invalidates the user
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64, tenantID *int64) error {
	if err := s.store.RevokeRole(ctx, userID, roleID, tenantID); err != nil {
		return err
	}
	s.resolver.InvalidateUser(ctx, userID)
	return nil
}

// SetRolePermissions replaces a role's bundle and invalidates every holder
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, keys []string) error {
	err := s.store.InTx(ctx, func(tx *Store) error {
		return tx.SetRolePermissions(ctx, roleID, keys)
	})
	if err != nil {
		return err
	}
	s.resolver.InvalidateRole(ctx, roleID)
	return nil
}

// AddPermissionsToRole extends a role's bundle and invalidates every holder
func (s *Service) AddPermissionsToRole(ctx context.Context, roleID int64, keys []string) error {
	err := s.store.InTx(ctx, func(tx *Store) error {
		return tx.AddPermissionsToRole(ctx, roleID, keys)
	})
	if err != nil {
		return err
	}
	s.resolver.InvalidateRole(ctx, roleID)
	return nil
}
