package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenSigner_RoundTrip(t *testing.T) {
	signer := NewAccessTokenSigner("test-secret", "homestead")
	tenantID := int64(9)

	token, expiresAt, err := signer.Sign(42, "session-1", &tenantID, 15*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := signer.Parse(token)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "session-1", claims.SessionID)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, tenantID, *claims.TenantID)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessTokenSigner_Rejects(t *testing.T) {
	signer := NewAccessTokenSigner("test-secret", "homestead")

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		old := NewAccessTokenSigner("test-secret", "homestead").WithClock(func() time.Time { return past })
		token, _, err := old.Sign(1, "s", nil, time.Minute)
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAccessTokenSigner("other-secret", "homestead")
		token, _, err := other.Sign(1, "s", nil, time.Minute)
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewAccessTokenSigner("test-secret", "someone-else")
		token, _, err := other.Sign(1, "s", nil, time.Minute)
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := AccessClaims{
			SessionID: "s",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "homestead",
				Subject:   "1",
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := signer.Parse("  ")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAccessTokenSigner_SignValidation(t *testing.T) {
	signer := NewAccessTokenSigner("test-secret", "homestead")

	_, _, err := signer.Sign(0, "s", nil, time.Minute)
	assert.Error(t, err)
	_, _, err = signer.Sign(1, "", nil, time.Minute)
	assert.Error(t, err)
	_, _, err = signer.Sign(1, "s", nil, 0)
	assert.Error(t, err)
}
