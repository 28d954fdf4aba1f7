package auth

import (
	"strings"
	"time"
)

// GlobalRole is the platform-wide role of a user account
type GlobalRole string

const (
	GlobalRoleUser       GlobalRole = "user"
	GlobalRoleSuperAdmin GlobalRole = "super_admin"
)

// User represents a person who can sign in
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	PasswordHash  *string    `json:"-"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	GlobalRole    GlobalRole `json:"global_role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsSuperAdmin reports whether the user bypasses tenant permission checks
func (u *User) IsSuperAdmin() bool {
	return u != nil && u.GlobalRole == GlobalRoleSuperAdmin
}

// HasCredential reports whether the user can sign in with a password
func (u *User) HasCredential() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// Principal is the authenticated caller of a request
type Principal struct {
	User      *User
	SessionID string
	// SessionTenantID is the tenant the session was opened for, if any
	SessionTenantID *int64
}

// UserID returns the principal's user id, or 0 for a nil principal
func (p *Principal) UserID() int64 {
	if p == nil || p.User == nil {
		return 0
	}
	return p.User.ID
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
