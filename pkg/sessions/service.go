package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/notify"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/storage"
)

// Revocation causes, used as metric labels
const (
	CauseLogout        = "logout"
	CauseAdmin         = "admin"
	CausePasswordReset = "password_reset"
	CauseTenantSuspend = "tenant_suspended"
	CauseMemberDisable = "membership_disabled"
)

// Config controls token lifetimes
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// DefaultConfig returns the default session configuration
func DefaultConfig() Config {
	return Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		BcryptCost: 12,
	}
}

var errInvalidCredentials = autherr.Unauthenticated("invalid email or password")

// Service signs users in and manages their sessions
type Service struct {
	db      storage.TxBeginner
	store   *Store
	users   *auth.UserStore
	signer  *auth.AccessTokenSigner
	tokens  *auth.TokenGenerator
	notices *notify.Dispatcher
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates a session service. notices may be nil.
func NewService(db *sql.DB, signer *auth.AccessTokenSigner, notices *notify.Dispatcher, cfg Config,
	logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		db:      db,
		store:   NewStore(db),
		users:   auth.NewUserStore(db),
		signer:  signer,
		tokens:  auth.NewTokenGenerator(),
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
	s.users.WithClock(now)
	return s
}

// Store returns the session store
func (s *Service) Store() *Store {
	return s.store
}

// Login verifies a password and opens a session, optionally bound to a
// tenant in which the user must be an active member and which must be active
func (s *Service) Login(ctx context.Context, email, password string, tenantID *int64) (*Tokens, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !user.HasCredential() {
		return nil, errInvalidCredentials
	}
	if err := auth.VerifyPassword(*user.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}

	if tenantID != nil && !user.IsSuperAdmin() {
		status, err := s.store.MembershipStatus(ctx, user.ID, *tenantID)
		if err != nil {
			return nil, err
		}
		if status != "ACTIVE" {
			return nil, autherr.Unauthorized("no_active_membership", "user is not an active member of this tenant")
		}
		tenantStatus, err := s.store.TenantStatus(ctx, *tenantID)
		if err != nil {
			return nil, err
		}
		if tenantStatus != "active" {
			return nil, autherr.Unauthorized(CauseTenantSuspend, "tenant is suspended")
		}
	}

	refreshToken, refreshHash, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}
	session := &Session{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		TenantID:         tenantID,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        s.now().Add(s.cfg.RefreshTTL),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).WithField("session_id", session.ID).Info("session opened")
	return s.issue(session, refreshToken)
}

// Authenticate resolves an access token to a principal. Any token whose
// session is revoked or expired, or whose user is inactive, is rejected.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error) {
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		return nil, autherr.Unauthenticated("invalid access token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, autherr.Unauthenticated("invalid access token")
	}

	session, err := s.activeSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, autherr.Unauthenticated("invalid access token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil, autherr.Unauthenticated("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, autherr.Unauthenticated("user is deactivated")
	}

	return &auth.Principal{
		User:            user,
		SessionID:       session.ID,
		SessionTenantID: session.TenantID,
	}, nil
}

// ValidateSession checks that a session is still live
func (s *Service) ValidateSession(ctx context.Context, sessionID string) error {
	_, err := s.activeSession(ctx, sessionID)
	return err
}

func (s *Service) activeSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil, autherr.Unauthenticated("session not found")
	}
	if err != nil {
		return nil, err
	}
	if session.Revoked {
		return nil, autherr.Unauthenticated("session revoked")
	}
	if !session.Active(s.now()) {
		return nil, autherr.Unauthenticated("session expired")
	}
	return session, nil
}

// Refresh exchanges a refresh token for new tokens, rotating the refresh
// token. Revoked or expired sessions never yield new credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	oldHash := auth.HashToken(refreshToken)
	session, err := s.store.GetByRefreshHash(ctx, oldHash)
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil, autherr.Unauthenticated("invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if !session.Active(s.now()) {
		return nil, autherr.Unauthenticated("session revoked or expired")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil && !autherr.IsKind(err, autherr.KindNotFound) {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, autherr.Unauthenticated("user is deactivated")
	}

	newToken, newHash, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.RefreshTTL)
	if err := s.store.Rotate(ctx, session.ID, oldHash, newHash, expiresAt); err != nil {
		return nil, err
	}
	session.RefreshTokenHash = newHash
	session.ExpiresAt = expiresAt

	return s.issue(session, newToken)
}

// Logout revokes one session
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	n, err := s.store.Revoke(ctx, sessionID)
	if err != nil {
		return err
	}
	s.metrics.RecordSessionRevocations(CauseLogout, n)
	return nil
}

// RevokeAllForUser revokes every live session of a user. Calling it again
// is a no-op.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSessionRevocations(CauseAdmin, n)
	s.logger.WithField("user_id", userID).WithField("revoked", n).Info("user sessions revoked")
	return n, nil
}

// RevokeAllForUserTx revokes every live session of a user as part of a
// caller's transaction. The caller records the revocation once it commits.
func (s *Service) RevokeAllForUserTx(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	return s.store.WithTx(tx).RevokeAllForUser(ctx, userID)
}

// RevokeAllForTenant revokes the sessions through which active members
// reach the tenant
func (s *Service) RevokeAllForTenant(ctx context.Context, tenantID int64) (int64, error) {
	n, err := s.store.RevokeAllForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSessionRevocations(CauseTenantSuspend, n)
	s.logger.WithField("tenant_id", tenantID).WithField("revoked", n).Info("tenant sessions revoked")
	return n, nil
}

// ResetPassword issues a new random credential, revokes every session of
// the user and sends the credential by notice after commit
func (s *Service) ResetPassword(ctx context.Context, userID int64) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	credential, err := s.tokens.GenerateCredential()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(credential, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	var revoked int64
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.WithTx(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		n, err := s.store.WithTx(tx).RevokeAllForUser(ctx, userID)
		revoked = n
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.metrics.RecordSessionRevocations(CausePasswordReset, revoked)
	s.logger.WithField("user_id", userID).WithField("revoked", revoked).Info("password reset")
	if s.notices != nil {
		s.notices.PasswordReset(notify.PasswordResetMessage{Email: user.Email, Credential: credential})
	}
	return nil
}

// PurgeExpired deletes sessions that expired before the cutoff
func (s *Service) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeExpired(ctx, before)
}

func (s *Service) issue(session *Session, refreshToken string) (*Tokens, error) {
	accessToken, accessExpiresAt, err := s.signer.Sign(session.UserID, session.ID, session.TenantID, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	return &Tokens{
		SessionID:        session.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}
