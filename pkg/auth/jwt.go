package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the token failed validation
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by an access token
type AccessClaims struct {
	SessionID string `json:"sid"`
	TenantID  *int64 `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// AccessTokenSigner signs and verifies HS256 access tokens
type AccessTokenSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAccessTokenSigner creates a signer for the given secret and issuer
func NewAccessTokenSigner(secret, issuer string) *AccessTokenSigner {
	return &AccessTokenSigner{
		secret: []byte(secret),
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the signer's clock
func (s *AccessTokenSigner) WithClock(now func() time.Time) *AccessTokenSigner {
	s.now = now
	return s
}

// Sign issues an access token bound to a session
func (s *AccessTokenSigner) Sign(userID int64, sessionID string, tenantID *int64, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("userID is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, errors.New("sessionID is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		SessionID: sessionID,
		TenantID:  tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the token signature and required claims
func (s *AccessTokenSigner) Parse(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AccessTokenSigner) validateClaims(claims *AccessClaims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if _, err := claims.UserID(); err != nil {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return errors.New("session missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(s.now().Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	return nil
}
