package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/notify"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/storage"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// Config controls invitation expiry and links
type Config struct {
	TTL time.Duration
	// AcceptURL is the page that accepts invitations; the token is appended
	// as the "token" query parameter
	AcceptURL  string
	BcryptCost int
}

// DefaultConfig returns the default invitation configuration
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, BcryptCost: 12}
}

// Service runs the invitation lifecycle
type Service struct {
	db      storage.TxBeginner
	store   *Store
	tenants *tenants.Store
	users   *auth.UserStore
	roles   *rbac.Store
	tokens  *auth.TokenGenerator
	perms   tenants.PermissionInvalidator
	notices *notify.Dispatcher
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates an invitation service. notices may be nil.
func NewService(db *sql.DB, roles *rbac.Store, perms tenants.PermissionInvalidator, notices *notify.Dispatcher,
	cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Service{
		db:      db,
		store:   NewStore(db),
		tenants: tenants.NewStore(db),
		users:   auth.NewUserStore(db),
		roles:   roles,
		tokens:  auth.NewTokenGenerator(),
		perms:   perms,
		notices: notices,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock of the service and its stores
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.store.WithClock(now)
	s.tenants.WithClock(now)
	s.users.WithClock(now)
	return s
}

// Create invites an email address into a tenant and returns the invitation
// with its plaintext token. The token is not retrievable afterwards.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invitation, string, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, "", err
	}

	token, tokenHash, err := s.tokens.Generate()
	if err != nil {
		return nil, "", err
	}
	inv := &Invitation{
		TenantID:  req.TenantID,
		Email:     email,
		RoleIDs:   req.RoleIDs,
		TokenHash: tokenHash,
		InvitedBy: req.InvitedBy,
		ExpiresAt: s.now().Add(s.cfg.TTL),
	}

	var tenant *tenants.Tenant
	var roles []rbac.Role
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		tenantStore := s.tenants.WithTx(tx)
		store := s.store.WithTx(tx)

		var err error
		tenant, err = tenantStore.GetTenant(ctx, req.TenantID)
		if err != nil {
			return err
		}
		if tenant.Status != tenants.TenantActive {
			return autherr.InvalidState(ReasonTenantSuspended, "tenant is suspended")
		}
		roles, err = s.roles.WithTx(tx).ValidateTenantRoles(ctx, req.TenantID, req.RoleIDs)
		if err != nil {
			return err
		}

		pending, err := store.FindPending(ctx, req.TenantID, email)
		if err != nil {
			return err
		}
		if pending != nil {
			if s.now().Before(pending.ExpiresAt) {
				return autherr.Conflict(ReasonPending, "an invitation is already pending for this email")
			}
			if err := store.MarkExpired(ctx, pending.ID); err != nil {
				return err
			}
		}

		// The insert comes first so that a concurrent invite for the same
		// email fails on the pending index before touching memberships
		if err := store.Create(ctx, inv); err != nil {
			return err
		}
		return s.ensurePendingMembership(ctx, tx, tenantStore, req, email)
	})
	if err != nil {
		return nil, "", err
	}

	s.metrics.RecordInvitationTransition(string(StatusPending))
	s.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"tenant_id":     inv.TenantID,
	}).Info("invitation created")
	s.sendInvite(inv, token, tenant, roles)
	return inv, token, nil
}

// ensurePendingMembership rejects invitations for existing members and
// records a PENDING_INVITE membership for known users
func (s *Service) ensurePendingMembership(ctx context.Context, tx *sql.Tx, tenantStore *tenants.Store, req CreateRequest, email string) error {
	user, err := s.users.WithTx(tx).FindByEmail(ctx, email)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	m, err := tenantStore.GetMembership(ctx, user.ID, req.TenantID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return tenantStore.CreateMembership(ctx, &tenants.Membership{
			UserID:    user.ID,
			TenantID:  req.TenantID,
			Status:    tenants.StatusPendingInvite,
			InvitedBy: req.InvitedBy,
		})
	}
	if err != nil {
		return err
	}

	switch m.Status {
	case tenants.StatusActive:
		return autherr.Conflict(ReasonAlreadyMember, "user is already a member of this tenant")
	case tenants.StatusDisabled:
		return autherr.InvalidState(ReasonMemberDisabled, "membership is disabled; enable it instead")
	}
	return nil
}

// Accept redeems an invitation token. Unknown emails become new users with
// the given credential; known users keep theirs.
func (s *Service) Accept(ctx context.Context, token, credential, displayName string) (*AcceptResult, error) {
	tokenHash := auth.HashToken(token)
	inv, err := s.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if err := s.checkPending(ctx, inv); err != nil {
		return nil, err
	}

	var passwordHash string
	if _, err := s.users.FindByEmail(ctx, inv.Email); autherr.IsKind(err, autherr.KindNotFound) {
		if credential == "" {
			return nil, autherr.InvalidInput("credential_required", "a password is required to create the account")
		}
		passwordHash, err = auth.HashPassword(credential, s.cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	result := &AcceptResult{}
	alreadyMember := false
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		tenantStore := s.tenants.WithTx(tx)

		tenant, err := tenantStore.GetTenant(ctx, inv.TenantID)
		if err != nil {
			return err
		}
		if tenant.Status != tenants.TenantActive {
			return autherr.InvalidState(ReasonTenantSuspended, "tenant is suspended")
		}

		// Claiming before any user insert makes concurrent accepts serialize
		// on the invitation row
		claimed, err := store.Claim(ctx, inv.ID, tokenHash)
		if err != nil {
			return err
		}
		if !claimed {
			return claimError(ctx, store, inv.ID, tokenHash)
		}

		result.User, result.Created, err = s.findOrCreateUser(ctx, tx, inv.Email, passwordHash, displayName)
		if err != nil {
			return err
		}
		if err := store.SetAcceptedBy(ctx, inv.ID, result.User.ID); err != nil {
			return err
		}

		result.Membership, alreadyMember, err = activateMembership(ctx, tenantStore, result.User.ID, inv)
		if err != nil || alreadyMember {
			return err
		}

		roles := s.roles.WithTx(tx)
		for _, roleID := range inv.RoleIDs {
			tenantID := inv.TenantID
			if err := roles.GrantRole(ctx, &rbac.Assignment{
				UserID:    result.User.ID,
				RoleID:    roleID,
				TenantID:  &tenantID,
				GrantedBy: inv.InvitedBy,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.perms.InvalidateUser(ctx, result.User.ID)
	s.metrics.RecordInvitationTransition(string(StatusAccepted))
	logger := s.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"tenant_id":     inv.TenantID,
		"user_id":       result.User.ID,
	})
	if alreadyMember {
		logger.Info("invitation accepted by an existing member")
		return nil, autherr.Conflict(ReasonAlreadyMember, "user is already a member of this tenant")
	}
	s.metrics.RecordMembershipTransition(string(tenants.StatusActive))
	logger.WithField("new_user", result.Created).Info("invitation accepted")
	return result, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, tx *sql.Tx, email, passwordHash, displayName string) (*auth.User, bool, error) {
	users := s.users.WithTx(tx)
	user, err := users.FindByEmail(ctx, email)
	if err == nil {
		if !user.IsActive {
			return nil, false, autherr.InvalidState("user_deactivated", "the account for this email is deactivated")
		}
		if !user.EmailVerified {
			if err := users.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, false, err
			}
			user.EmailVerified = true
		}
		return user, false, nil
	}
	if !autherr.IsKind(err, autherr.KindNotFound) {
		return nil, false, err
	}
	// The account appeared after the credential check
	if passwordHash == "" {
		return nil, false, autherr.Conflict("email_taken", "a user with this email already exists")
	}

	user = &auth.User{
		Email:         email,
		DisplayName:   strings.TrimSpace(displayName),
		PasswordHash:  &passwordHash,
		IsActive:      true,
		EmailVerified: true,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// activateMembership moves the user's membership to ACTIVE, creating it when
// missing. It reports true when the user was already an active member.
func activateMembership(ctx context.Context, store *tenants.Store, userID int64, inv *Invitation) (*tenants.Membership, bool, error) {
	m, err := store.GetMembership(ctx, userID, inv.TenantID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		m = &tenants.Membership{
			UserID:    userID,
			TenantID:  inv.TenantID,
			Status:    tenants.StatusActive,
			InvitedBy: inv.InvitedBy,
		}
		if err := store.CreateMembership(ctx, m); err != nil {
			return nil, false, err
		}
		return m, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch m.Status {
	case tenants.StatusActive:
		return m, true, nil
	case tenants.StatusDisabled:
		return nil, false, autherr.InvalidState(ReasonMemberDisabled, "membership is disabled")
	}
	if err := store.TransitionMembership(ctx, m.ID, tenants.StatusPendingInvite, tenants.StatusActive); err != nil {
		return nil, false, err
	}
	m, err = store.GetMembership(ctx, userID, inv.TenantID)
	return m, false, err
}

// claimError explains a failed claim: the invitation left PENDING, its token
// was rotated, or it expired since it was read
func claimError(ctx context.Context, store *Store, id int64, tokenHash string) error {
	current, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case current.Status != StatusPending:
		return statusError(current.Status)
	case current.TokenHash != tokenHash:
		return errNotFound
	default:
		return statusError(StatusExpired)
	}
}

// Resend rotates the token and expiry of a pending invitation and sends it
// again. Delivery failures do not undo the rotation.
func (s *Service) Resend(ctx context.Context, tenantID, invitationID int64) (*Invitation, string, error) {
	inv, err := s.Get(ctx, tenantID, invitationID)
	if err != nil {
		return nil, "", err
	}
	if err := s.checkPending(ctx, inv); err != nil {
		return nil, "", err
	}
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	if tenant.Status != tenants.TenantActive {
		return nil, "", autherr.InvalidState(ReasonTenantSuspended, "tenant is suspended")
	}
	roles, err := s.roles.GetRoles(ctx, inv.RoleIDs)
	if err != nil {
		return nil, "", err
	}

	token, tokenHash, err := s.tokens.Generate()
	if err != nil {
		return nil, "", err
	}
	expiresAt := s.now().Add(s.cfg.TTL)
	rotated, err := s.store.Rotate(ctx, inv.ID, tokenHash, expiresAt)
	if err != nil {
		return nil, "", err
	}
	if !rotated {
		return nil, "", s.currentStatusError(ctx, inv.ID)
	}
	inv.TokenHash = tokenHash
	inv.ExpiresAt = expiresAt

	s.logger.WithField("invitation_id", inv.ID).WithField("tenant_id", tenantID).Info("invitation resent")
	s.sendInvite(inv, token, tenant, roles)
	return inv, token, nil
}

// Revoke cancels a pending invitation
func (s *Service) Revoke(ctx context.Context, tenantID, invitationID int64, revokedBy *int64) error {
	inv, err := s.Get(ctx, tenantID, invitationID)
	if err != nil {
		return err
	}
	if inv.Status != StatusPending {
		return statusError(inv.Status)
	}

	revoked, err := s.store.Revoke(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !revoked {
		return s.currentStatusError(ctx, inv.ID)
	}

	s.metrics.RecordInvitationTransition(string(StatusRevoked))
	logger := s.logger.WithField("invitation_id", inv.ID).WithField("tenant_id", tenantID)
	if revokedBy != nil {
		logger = logger.WithField("revoked_by", *revokedBy)
	}
	logger.Info("invitation revoked")
	return nil
}

// Get retrieves an invitation of a tenant
func (s *Service) Get(ctx context.Context, tenantID, invitationID int64) (*Invitation, error) {
	inv, err := s.store.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.TenantID != tenantID {
		return nil, errNotFound
	}
	return inv, nil
}

// ListByTenant lists a tenant's invitations, optionally filtered by status
func (s *Service) ListByTenant(ctx context.Context, tenantID int64, status *Status) ([]Invitation, error) {
	return s.store.ListByTenant(ctx, tenantID, status)
}

// ExpireStale marks every overdue PENDING invitation EXPIRED
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithField("expired", n).Info("stale invitations expired")
	}
	return n, nil
}

// checkPending fails unless the invitation can still be used. A PENDING
// invitation past its expiry is persisted as EXPIRED first.
func (s *Service) checkPending(ctx context.Context, inv *Invitation) error {
	if inv.Status != StatusPending {
		return statusError(inv.Status)
	}
	if s.now().Before(inv.ExpiresAt) {
		return nil
	}
	if err := s.store.MarkExpired(ctx, inv.ID); err != nil {
		return err
	}
	s.metrics.RecordInvitationTransition(string(StatusExpired))
	return statusError(StatusExpired)
}

func (s *Service) currentStatusError(ctx context.Context, id int64) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return statusError(current.Status)
}

func (s *Service) sendInvite(inv *Invitation, token string, tenant *tenants.Tenant, roles []rbac.Role) {
	if s.notices == nil {
		return
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	s.notices.Invite(notify.InviteMessage{
		Email:      inv.Email,
		Token:      token,
		AcceptURL:  s.acceptURL(token),
		TenantName: tenant.Name,
		RoleLabel:  strings.Join(names, ", "),
		ExpiresAt:  inv.ExpiresAt,
	})
}

func (s *Service) acceptURL(token string) string {
	if s.cfg.AcceptURL == "" {
		return ""
	}
	u, err := url.Parse(s.cfg.AcceptURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func statusError(status Status) error {
	switch status {
	case StatusAccepted:
		return autherr.InvalidState(ReasonAccepted, "invitation was already accepted")
	case StatusRevoked:
		return autherr.InvalidState(ReasonRevoked, "invitation was revoked")
	case StatusExpired:
		return autherr.InvalidState(ReasonExpired, "invitation has expired")
	default:
		return autherr.InvalidState("invitation_changed", fmt.Sprintf("invitation is %s", status))
	}
}

func normalizeEmail(email string) (string, error) {
	email = auth.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", autherr.InvalidInput("invalid_email", "a valid email address is required")
	}
	return email, nil
}
