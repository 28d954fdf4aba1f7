package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage"
)

const sessionColumns = `id, user_id, tenant_id, refresh_token_hash, expires_at, revoked, revoked_at, created_at, last_used_at`

var errSessionNotFound = autherr.NotFound("session_not_found", "session not found")

// Store persists sessions
type Store struct {
	q   storage.Querier
	now func() time.Time
}

// NewStore creates a session store over a database or transaction
func NewStore(q storage.Querier) *Store {
	return &Store{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithTx returns a copy of the store bound to a transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx, now: s.now}
}

// Create inserts a new session
func (s *Store) Create(ctx context.Context, session *Session) error {
	session.CreatedAt = s.now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, tenant_id, refresh_token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, session.ID, session.UserID, storage.NullInt64(session.TenantID), session.RefreshTokenHash,
		session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return s.scan(row)
}

// GetByRefreshHash retrieves the session owning a refresh token hash
func (s *Store) GetByRefreshHash(ctx context.Context, hash string) (*Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	return s.scan(row)
}

// Rotate replaces the refresh hash of a live session. It fails with
// Unauthenticated if the session was revoked or already rotated away from
// oldHash.
func (s *Store) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $1, expires_at = $2, last_used_at = $3
		WHERE id = $4 AND refresh_token_hash = $5 AND revoked = FALSE
	`, newHash, expiresAt, s.now(), id, oldHash)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	if n == 0 {
		return autherr.Unauthenticated("refresh token is no longer valid")
	}
	return nil
}

// Revoke revokes one session. Revoking a revoked session is a no-op.
func (s *Store) Revoke(ctx context.Context, id string) (int64, error) {
	return s.exec(ctx, "failed to revoke session", `
		UPDATE sessions SET revoked = TRUE, revoked_at = $1
		WHERE id = $2 AND revoked = FALSE
	`, s.now(), id)
}

// RevokeAllForUser revokes every live session of a user and returns how
// many were revoked
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	return s.exec(ctx, "failed to revoke user sessions", `
		UPDATE sessions SET revoked = TRUE, revoked_at = $1
		WHERE user_id = $2 AND revoked = FALSE
	`, s.now(), userID)
}

// RevokeAllForTenant revokes the sessions of the tenant's active members
// that can reach the tenant: sessions opened for it, and unbound sessions of
// members with no active membership elsewhere
func (s *Store) RevokeAllForTenant(ctx context.Context, tenantID int64) (int64, error) {
	return s.exec(ctx, "failed to revoke tenant sessions", `
		UPDATE sessions SET revoked = TRUE, revoked_at = $1
		WHERE revoked = FALSE
		  AND user_id IN (
			SELECT m.user_id FROM memberships m
			WHERE m.tenant_id = $2 AND m.status = 'ACTIVE'
		  )
		  AND (
			tenant_id = $2
			OR (tenant_id IS NULL AND NOT EXISTS (
				SELECT 1 FROM memberships o
				WHERE o.user_id = sessions.user_id AND o.tenant_id <> $2 AND o.status = 'ACTIVE'
			))
		  )
	`, s.now(), tenantID)
}

// PurgeExpired deletes sessions that expired before the cutoff
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.exec(ctx, "failed to purge sessions", `DELETE FROM sessions WHERE expires_at < $1`, before)
}

// MembershipStatus returns the user's membership status in a tenant, or ""
// when there is none
func (s *Store) MembershipStatus(ctx context.Context, userID, tenantID int64) (string, error) {
	var status string
	err := s.q.QueryRowContext(ctx,
		`SELECT status FROM memberships WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load membership: %w", err)
	}
	return status, nil
}

// TenantStatus returns a tenant's status, or "" when it does not exist
func (s *Store) TenantStatus(ctx context.Context, tenantID int64) (string, error) {
	var status string
	err := s.q.QueryRowContext(ctx, `SELECT status FROM tenants WHERE id = $1`, tenantID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load tenant: %w", err)
	}
	return status, nil
}

func (s *Store) exec(ctx context.Context, msg, query string, args ...interface{}) (int64, error) {
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", msg, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", msg, err)
	}
	return n, nil
}

func (s *Store) scan(row *sql.Row) (*Session, error) {
	var session Session
	var tenantID sql.NullInt64
	var revokedAt, lastUsedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&tenantID,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.Revoked,
		&revokedAt,
		&session.CreatedAt,
		&lastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.TenantID = storage.Int64Ptr(tenantID)
	session.RevokedAt = storage.TimePtr(revokedAt)
	session.LastUsedAt = storage.TimePtr(lastUsedAt)
	return &session, nil
}
