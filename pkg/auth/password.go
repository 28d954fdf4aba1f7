package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/homestead/pkg/autherr"
)

// MinPasswordLength is the shortest accepted credential
const MinPasswordLength = 8

// ErrPasswordMismatch is returned when a password does not match its hash
var ErrPasswordMismatch = errors.New("password mismatch")

// HashPassword hashes a plaintext credential with bcrypt
func HashPassword(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a bcrypt hash with a plaintext credential
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}

// ValidatePassword checks a credential against the password policy
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return autherr.InvalidInput("weak_password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	// bcrypt silently truncates beyond 72 bytes
	if len(password) > 72 {
		return autherr.InvalidInput("weak_password", "password must be at most 72 bytes")
	}
	return nil
}
