package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("classified error", func(t *testing.T) {
		err := InvalidState("invitation_expired", "invitation has expired")
		assert.Equal(t, KindInvalidState, KindOf(err))
		assert.Equal(t, "invitation_expired", ReasonOf(err))
	})

	t.Run("wrapped classified error", func(t *testing.T) {
		err := fmt.Errorf("accept invitation: %w", Conflict("already_member", "user is already a member"))
		assert.Equal(t, KindConflict, KindOf(err))
		assert.True(t, IsKind(err, KindConflict))
		assert.Equal(t, "already_member", ReasonOf(err))
	})

	t.Run("plain error is internal", func(t *testing.T) {
		err := errors.New("connection refused")
		assert.Equal(t, KindInternal, KindOf(err))
		assert.Equal(t, "", ReasonOf(err))
	})

	t.Run("nil is not any kind", func(t *testing.T) {
		assert.False(t, IsKind(nil, KindInternal))
	})
}

func TestErrorsIsSentinels(t *testing.T) {
	err := fmt.Errorf("disable: %w", InvalidState("membership_disabled", "membership already disabled"))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.True(t, errors.Is(Unauthenticated("session revoked"), ErrUnauthenticated))
	assert.False(t, errors.Is(Unauthenticated("session revoked"), ErrUnauthorized))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "not_found", (&Error{Kind: KindNotFound}).Error())
	assert.Equal(t, "role not found", NotFound("role_not_found", "role not found").Error())

	cause := errors.New("boom")
	wrapped := Wrap(KindInvalidInput, "bad_password", cause)
	assert.Equal(t, "invalid_input: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
