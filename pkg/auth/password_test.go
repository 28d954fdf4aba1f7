package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/homestead/pkg/autherr"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("open-house-2024", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "open-house-2024", hash)

	assert.NoError(t, VerifyPassword(hash, "open-house-2024"))
	assert.ErrorIs(t, VerifyPassword(hash, "open-house-2025"), ErrPasswordMismatch)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "acceptable", password: "listings!", wantErr: false},
		{name: "too short", password: "short", wantErr: true},
		{name: "empty", password: "", wantErr: true},
		{name: "too long", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.True(t, autherr.IsKind(err, autherr.KindInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	err := VerifyPassword("not-a-bcrypt-hash", "whatever1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)
}
