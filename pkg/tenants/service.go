package tenants

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/sessions"
	"github.com/platinummonkey/homestead/pkg/storage"
)

// SessionRevoker revokes sessions on membership and tenant changes
type SessionRevoker interface {
	RevokeAllForUserTx(ctx context.Context, tx *sql.Tx, userID int64) (int64, error)
	RevokeAllForTenant(ctx context.Context, tenantID int64) (int64, error)
}

// PermissionInvalidator drops cached permission sets of a user
type PermissionInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service manages tenants and the membership lifecycle
type Service struct {
	db       storage.TxBeginner
	store    *Store
	roles    *rbac.Store
	sessions SessionRevoker
	perms    PermissionInvalidator
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewService creates a tenant service
func NewService(db *sql.DB, roles *rbac.Store, sessions SessionRevoker, perms PermissionInvalidator,
	logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		db:       db,
		store:    NewStore(db),
		roles:    roles,
		sessions: sessions,
		perms:    perms,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithClock overrides the clock of the tenant store
func (s *Service) WithClock(now func() time.Time) *Service {
	s.store.WithClock(now)
	return s
}

// Store returns the tenant store
func (s *Service) Store() *Store {
	return s.store
}

// CreateTenant registers a tenant
func (s *Service) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	s.logger.WithField("tenant_id", tenant.ID).WithField("slug", tenant.Slug).Info("tenant created")
	return nil
}

// GetTenant retrieves a tenant
func (s *Service) GetTenant(ctx context.Context, tenantID int64) (*Tenant, error) {
	return s.store.GetTenant(ctx, tenantID)
}

// TenantStatus returns the status of a tenant
func (s *Service) TenantStatus(ctx context.Context, tenantID int64) (TenantStatus, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return tenant.Status, nil
}

// SuspendTenant suspends a tenant and revokes the sessions through which
// its members reach it
func (s *Service) SuspendTenant(ctx context.Context, tenantID int64) error {
	if err := s.store.SetTenantStatus(ctx, tenantID, TenantActive, TenantSuspended); err != nil {
		return err
	}
	revoked, err := s.sessions.RevokeAllForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	s.logger.WithField("tenant_id", tenantID).WithField("revoked_sessions", revoked).Info("tenant suspended")
	return nil
}

// ReactivateTenant returns a suspended tenant to active
func (s *Service) ReactivateTenant(ctx context.Context, tenantID int64) error {
	if err := s.store.SetTenantStatus(ctx, tenantID, TenantSuspended, TenantActive); err != nil {
		return err
	}
	s.logger.WithField("tenant_id", tenantID).Info("tenant reactivated")
	return nil
}

// Status returns the user's membership status in a tenant
func (s *Service) Status(ctx context.Context, userID, tenantID int64) (MembershipStatus, error) {
	m, err := s.store.GetMembership(ctx, userID, tenantID)
	if err != nil {
		return "", err
	}
	return m.Status, nil
}

// GetByID returns a membership with the roles the user holds in its tenant
func (s *Service) GetByID(ctx context.Context, userID, tenantID int64) (*MemberDetail, error) {
	m, err := s.store.GetMembership(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.ListTenantRoles(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	return &MemberDetail{Membership: *m, Roles: roles}, nil
}

// List lists the memberships of a tenant
func (s *Service) List(ctx context.Context, tenantID int64) ([]Membership, error) {
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListMemberships(ctx, tenantID)
}

// CreateActiveMembership adds a user directly as an active member, as on
// tenant self-registration
func (s *Service) CreateActiveMembership(ctx context.Context, userID, tenantID int64, roleIDs []int64) (*Membership, error) {
	m := &Membership{UserID: userID, TenantID: tenantID, Status: StatusActive}
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		roles := s.roles.WithTx(tx)
		if _, err := roles.ValidateTenantRoles(ctx, tenantID, roleIDs); err != nil {
			return err
		}
		if err := s.store.WithTx(tx).CreateMembership(ctx, m); err != nil {
			return err
		}
		return roles.ReplaceTenantRoles(ctx, userID, tenantID, roleIDs, nil)
	})
	if err != nil {
		return nil, err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.metrics.RecordMembershipTransition(string(StatusActive))
	return m, nil
}

// Disable disables an active membership and revokes every session of the
// user. Pending memberships are ended by revoking their invitation instead.
func (s *Service) Disable(ctx context.Context, userID, tenantID int64) error {
	var revoked int64
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		m, err := store.GetMembership(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		switch m.Status {
		case StatusDisabled:
			return autherr.InvalidState("membership_disabled", "membership already disabled")
		case StatusPendingInvite:
			return autherr.InvalidState("membership_pending", "membership is pending; revoke the invitation instead")
		}
		if err := store.TransitionMembership(ctx, m.ID, m.Status, StatusDisabled); err != nil {
			return err
		}
		revoked, err = s.sessions.RevokeAllForUserTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.metrics.RecordMembershipTransition(string(StatusDisabled))
	s.metrics.RecordSessionRevocations(sessions.CauseMemberDisable, revoked)
	s.logger.WithFields(map[string]interface{}{
		"user_id":          userID,
		"tenant_id":        tenantID,
		"revoked_sessions": revoked,
	}).Info("membership disabled")
	return nil
}

// Enable re-activates a disabled membership
func (s *Service) Enable(ctx context.Context, userID, tenantID int64) error {
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		m, err := store.GetMembership(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		switch m.Status {
		case StatusActive:
			return autherr.InvalidState("membership_active", "membership already active")
		case StatusPendingInvite:
			return autherr.InvalidState("membership_pending", "membership is activated by accepting the invitation")
		}
		return store.TransitionMembership(ctx, m.ID, StatusDisabled, StatusActive)
	})
	if err != nil {
		return err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.metrics.RecordMembershipTransition(string(StatusActive))
	s.logger.WithField("user_id", userID).WithField("tenant_id", tenantID).Info("membership enabled")
	return nil
}

// UpdateRoles replaces the user's role set in a tenant. Every role must
// exist and be a TENANT role usable in the tenant, otherwise nothing
// changes.
func (s *Service) UpdateRoles(ctx context.Context, userID, tenantID int64, roleIDs []int64, grantedBy *int64) ([]rbac.Role, error) {
	var roles []rbac.Role
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.store.WithTx(tx).GetMembership(ctx, userID, tenantID); err != nil {
			return err
		}
		store := s.roles.WithTx(tx)
		var err error
		roles, err = store.ValidateTenantRoles(ctx, tenantID, roleIDs)
		if err != nil {
			return err
		}
		return store.ReplaceTenantRoles(ctx, userID, tenantID, roleIDs, grantedBy)
	})
	if err != nil {
		return nil, err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
		"roles":     len(roles),
	}).Info("member roles updated")
	if roles == nil {
		roles = []rbac.Role{}
	}
	return roles, nil
}
