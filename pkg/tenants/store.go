package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

var (
	errTenantNotFound     = autherr.NotFound("tenant_not_found", "tenant not found")
	errMembershipNotFound = autherr.NotFound("membership_not_found", "membership not found")
)

const tenantColumns = `id, name, slug, status, created_at, updated_at`

const membershipSelect = `
	SELECT m.id, m.user_id, m.tenant_id, m.status, u.email, u.display_name,
	       m.invited_by, m.invited_at, m.accepted_at, m.created_at, m.updated_at
	FROM memberships m
	JOIN users u ON u.id = m.user_id
`

// Store persists tenants and memberships
type Store struct {
	q   storage.Querier
	now func() time.Time
}

// NewStore creates a tenant store over a database or transaction
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

// CreateTenant inserts an active tenant; the slug must be unused
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) error {
	tenant.Name = strings.TrimSpace(tenant.Name)
	tenant.Slug = strings.ToLower(strings.TrimSpace(tenant.Slug))
	if tenant.Name == "" {
		return autherr.InvalidInput("tenant_name_required", "tenant name is required")
	}
	if !slugPattern.MatchString(tenant.Slug) {
		return autherr.InvalidInput("invalid_slug", "slug must be 2-63 lowercase letters, digits or hyphens")
	}

	if _, err := s.GetTenantBySlug(ctx, tenant.Slug); err == nil {
		return autherr.Conflict("slug_taken", "a tenant with this slug already exists")
	} else if !autherr.IsKind(err, autherr.KindNotFound) {
		return err
	}

	now := s.now()
	tenant.Status = TenantActive
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO tenants (name, slug, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, tenant.Name, tenant.Slug, string(tenant.Status), now).Scan(&tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	return s.scanTenant(s.q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

// GetTenantBySlug retrieves a tenant by slug
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.scanTenant(s.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, strings.ToLower(slug)))
}

// SetTenantStatus moves a tenant from one status to another. It fails with
// InvalidState when the tenant is not in the expected status.
func (s *Store) SetTenantStatus(ctx context.Context, id int64, from, to TenantStatus) error {
	n, err := s.exec(ctx, "failed to update tenant status", `
		UPDATE tenants SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), s.now(), id, string(from))
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetTenant(ctx, id); err != nil {
			return err
		}
		return autherr.InvalidState("tenant_"+string(to), fmt.Sprintf("tenant is not %s", from))
	}
	return nil
}

// GetMembership retrieves the membership of a user in a tenant
func (s *Store) GetMembership(ctx context.Context, userID, tenantID int64) (*Membership, error) {
	row := s.q.QueryRowContext(ctx, membershipSelect+`WHERE m.user_id = $1 AND m.tenant_id = $2`, userID, tenantID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMemberships lists the memberships of a tenant, oldest first
func (s *Store) ListMemberships(ctx context.Context, tenantID int64) ([]Membership, error) {
	rows, err := s.q.QueryContext(ctx, membershipSelect+`WHERE m.tenant_id = $1 ORDER BY m.created_at, m.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// CreateMembership inserts a membership in m.Status. A user has at most one
// membership per tenant.
func (s *Store) CreateMembership(ctx context.Context, m *Membership) error {
	if _, err := s.GetMembership(ctx, m.UserID, m.TenantID); err == nil {
		return autherr.Conflict("membership_exists", "user already has a membership in this tenant")
	} else if !autherr.IsKind(err, autherr.KindNotFound) {
		return err
	}

	now := s.now()
	var invitedAt, acceptedAt *time.Time
	switch m.Status {
	case StatusPendingInvite:
		invitedAt = &now
	case StatusActive:
		acceptedAt = &now
	default:
		return autherr.InvalidInput("invalid_status", "memberships start pending or active")
	}

	err := s.q.QueryRowContext(ctx, `
		INSERT INTO memberships (user_id, tenant_id, status, invited_by, invited_at, accepted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, m.UserID, m.TenantID, string(m.Status), storage.NullInt64(m.InvitedBy),
		storage.NullTime(invitedAt), storage.NullTime(acceptedAt), now).Scan(&m.ID)
	if storage.IsUniqueViolation(err) {
		return autherr.Conflict("membership_exists", "user already has a membership in this tenant")
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	m.InvitedAt = invitedAt
	m.AcceptedAt = acceptedAt
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// TransitionMembership moves a membership from one status to another. It
// fails with InvalidState when the row is no longer in the expected status.
func (s *Store) TransitionMembership(ctx context.Context, id int64, from, to MembershipStatus) error {
	now := s.now()
	var acceptedAt *time.Time
	if from == StatusPendingInvite && to == StatusActive {
		acceptedAt = &now
	}
	n, err := s.exec(ctx, "failed to update membership", `
		UPDATE memberships
		SET status = $1, updated_at = $2, accepted_at = COALESCE(accepted_at, $3)
		WHERE id = $4 AND status = $5
	`, string(to), now, storage.NullTime(acceptedAt), id, string(from))
	if err != nil {
		return err
	}
	if n == 0 {
		return autherr.InvalidState("membership_changed", "membership was modified concurrently")
	}
	return nil
}

func (s *Store) scanTenant(row *sql.Row) (*Tenant, error) {
	var t Tenant
	var status string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.Status = TenantStatus(status)
	return &t, nil
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

func scanMembership(row interface {
	Scan(dest ...interface{}) error
}) (*Membership, error) {
	var m Membership
	var status string
	var invitedBy sql.NullInt64
	var invitedAt, acceptedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.UserID, &m.TenantID, &status, &m.Email, &m.DisplayName,
		&invitedBy, &invitedAt, &acceptedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = MembershipStatus(status)
	m.InvitedBy = storage.Int64Ptr(invitedBy)
	m.InvitedAt = storage.TimePtr(invitedAt)
	m.AcceptedAt = storage.TimePtr(acceptedAt)
	return &m, nil
}
