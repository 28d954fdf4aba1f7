package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage"
)

const userColumns = `id, email, display_name, password_hash, is_active, email_verified, global_role, created_at, updated_at`

// UserStore persists user accounts
type UserStore struct {
	q   storage.Querier
	now func() time.Time
}

// NewUserStore creates a user store over a database or transaction
func NewUserStore(q storage.Querier) *UserStore {
	return &UserStore{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock
func (s *UserStore) WithClock(now func() time.Time) *UserStore {
	s.now = now
	return s
}

// WithTx returns a copy of the store bound to a transaction
func (s *UserStore) WithTx(tx *sql.Tx) *UserStore {
	return &UserStore{q: tx, now: s.now}
}

// Create inserts a new user; the email must not already be registered
func (s *UserStore) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	if user.Email == "" {
		return autherr.InvalidInput("email_required", "email is required")
	}
	if user.GlobalRole == "" {
		user.GlobalRole = GlobalRoleUser
	}

	existing, err := s.FindByEmail(ctx, user.Email)
	if err != nil && !autherr.IsKind(err, autherr.KindNotFound) {
		return err
	}
	if existing != nil {
		return autherr.Conflict("email_taken", "a user with this email already exists")
	}

	now := s.now()
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, is_active, email_verified, global_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, user.Email, user.DisplayName, user.PasswordHash, user.IsActive, user.EmailVerified, string(user.GlobalRole), now).Scan(&user.ID)
	if storage.IsUniqueViolation(err) {
		return autherr.Conflict("email_taken", "a user with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// FindByID retrieves a user by id
func (s *UserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherr.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email, case-insensitively
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherr.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpdatePassword replaces the user's credential hash
func (s *UserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.update(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, s.now(), id)
}

// SetActive enables or disables the account platform-wide
func (s *UserStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.update(ctx, `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`, active, s.now(), id)
}

// MarkEmailVerified flags the user's email as verified
func (s *UserStore) MarkEmailVerified(ctx context.Context, id int64) error {
	return s.update(ctx, `UPDATE users SET email_verified = $1, updated_at = $2 WHERE id = $3`, true, s.now(), id)
}

func (s *UserStore) update(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return autherr.NotFound("user_not_found", "user not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var passwordHash sql.NullString
	var globalRole string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&passwordHash,
		&user.IsActive,
		&user.EmailVerified,
		&globalRole,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		hash := passwordHash.String
		user.PasswordHash = &hash
	}
	user.GlobalRole = GlobalRole(globalRole)
	return &user, nil
}
