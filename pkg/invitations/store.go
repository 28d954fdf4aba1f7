package invitations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage"
)

const invitationColumns = `id, tenant_id, email, role_ids, token_hash, status, invited_by, expires_at,
	accepted_by, accepted_at, revoked_at, created_at, updated_at`

var errNotFound = autherr.NotFound(ReasonNotFound, "invitation not found")

// Store persists invitations
type Store struct {
	q   storage.Querier
	now func() time.Time
}

// NewStore creates an invitation store over a database or transaction
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

// Create inserts a PENDING invitation
func (s *Store) Create(ctx context.Context, inv *Invitation) error {
	roleIDs, err := json.Marshal(nonNil(inv.RoleIDs))
	if err != nil {
		return fmt.Errorf("failed to encode role ids: %w", err)
	}

	now := s.now()
	inv.Status = StatusPending
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO invitations (tenant_id, email, role_ids, token_hash, status, invited_by, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, inv.TenantID, inv.Email, string(roleIDs), inv.TokenHash, string(inv.Status),
		storage.NullInt64(inv.InvitedBy), inv.ExpiresAt, now).Scan(&inv.ID)
	if storage.IsUniqueViolation(err) {
		return autherr.Conflict(ReasonPending, "an invitation is already pending for this email")
	}
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now
	return nil
}

// Get retrieves an invitation by ID
func (s *Store) Get(ctx context.Context, id int64) (*Invitation, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
}

// GetByTokenHash retrieves the invitation owning a token hash
func (s *Store) GetByTokenHash(ctx context.Context, hash string) (*Invitation, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, hash))
}

// FindPending returns the PENDING invitation for an email in a tenant, if
// any, regardless of its expiry
func (s *Store) FindPending(ctx context.Context, tenantID int64, email string) (*Invitation, error) {
	inv, err := s.scanOne(s.q.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE tenant_id = $1 AND email = $2 AND status = $3
		ORDER BY id DESC
		LIMIT 1
	`, tenantID, email, string(StatusPending)))
	if autherr.IsKind(err, autherr.KindNotFound) {
		return nil, nil
	}
	return inv, err
}

// ListByTenant lists a tenant's invitations, newest first, optionally
// filtered by status
func (s *Store) ListByTenant(ctx context.Context, tenantID int64, status *Status) ([]Invitation, error) {
	var rows *sql.Rows
	var err error
	if status == nil {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+invitationColumns+` FROM invitations WHERE tenant_id = $1 ORDER BY id DESC`, tenantID)
	} else {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+invitationColumns+` FROM invitations WHERE tenant_id = $1 AND status = $2 ORDER BY id DESC`,
			tenantID, string(*status))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// Claim moves a PENDING invitation to ACCEPTED while it still carries
// tokenHash and has not expired. It reports false otherwise, so at most one
// caller claims it and a rotated or expired token never does.
func (s *Store) Claim(ctx context.Context, id int64, tokenHash string) (bool, error) {
	now := s.now()
	n, err := s.exec(ctx, "failed to accept invitation", `
		UPDATE invitations
		SET status = $1, accepted_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4 AND token_hash = $5 AND expires_at > $2
	`, string(StatusAccepted), now, id, string(StatusPending), tokenHash)
	return n == 1, err
}

// SetAcceptedBy records the user who accepted a claimed invitation
func (s *Store) SetAcceptedBy(ctx context.Context, id, userID int64) error {
	_, err := s.exec(ctx, "failed to record invitation acceptor", `
		UPDATE invitations SET accepted_by = $1 WHERE id = $2
	`, userID, id)
	return err
}

// Revoke moves a PENDING invitation to REVOKED
func (s *Store) Revoke(ctx context.Context, id int64) (bool, error) {
	now := s.now()
	n, err := s.exec(ctx, "failed to revoke invitation", `
		UPDATE invitations
		SET status = $1, revoked_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(StatusRevoked), now, id, string(StatusPending))
	return n == 1, err
}

// MarkExpired moves a PENDING invitation to EXPIRED
func (s *Store) MarkExpired(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "failed to expire invitation", `
		UPDATE invitations SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(StatusExpired), s.now(), id, string(StatusPending))
	return err
}

// Rotate replaces the token and expiry of a PENDING invitation
func (s *Store) Rotate(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (bool, error) {
	n, err := s.exec(ctx, "failed to rotate invitation token", `
		UPDATE invitations
		SET token_hash = $1, expires_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, tokenHash, expiresAt, s.now(), id, string(StatusPending))
	return n == 1, err
}

// ExpireStale moves every PENDING invitation past its expiry to EXPIRED and
// returns how many changed
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now()
	return s.exec(ctx, "failed to expire invitations", `
		UPDATE invitations SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2
	`, string(StatusExpired), now, string(StatusPending))
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

func (s *Store) scanOne(row *sql.Row) (*Invitation, error) {
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

func scanInvitation(row interface {
	Scan(dest ...interface{}) error
}) (*Invitation, error) {
	var inv Invitation
	var roleIDs, status string
	var invitedBy, acceptedBy sql.NullInt64
	var acceptedAt, revokedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &roleIDs, &inv.TokenHash, &status, &invitedBy, &inv.ExpiresAt,
		&acceptedBy, &acceptedAt, &revokedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roleIDs), &inv.RoleIDs); err != nil {
		return nil, fmt.Errorf("failed to decode role ids: %w", err)
	}
	inv.Status = Status(status)
	inv.InvitedBy = storage.Int64Ptr(invitedBy)
	inv.AcceptedBy = storage.Int64Ptr(acceptedBy)
	inv.AcceptedAt = storage.TimePtr(acceptedAt)
	inv.RevokedAt = storage.TimePtr(revokedAt)
	return &inv, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
