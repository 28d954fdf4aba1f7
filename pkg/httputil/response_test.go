package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/autherr"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusCreated, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorMessage(w, http.StatusNotFound, "resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "resource not found", body.Error)
	assert.Empty(t, body.Reason)
	assert.NotContains(t, w.Body.String(), "reason")
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()

	WriteBadRequest(w, "invalid tenant_id")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeError(t, w).Reason)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteAuthError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
		wantError  string
	}{
		{
			name:       "invalid input",
			err:        autherr.InvalidInput("invalid_email", "email is not valid"),
			wantStatus: http.StatusBadRequest,
			wantReason: "invalid_email",
			wantError:  "email is not valid",
		},
		{
			name:       "unauthenticated",
			err:        autherr.Unauthenticated("session revoked"),
			wantStatus: http.StatusUnauthorized,
			wantReason: "unauthenticated",
			wantError:  "session revoked",
		},
		{
			name:       "unauthorized",
			err:        autherr.Unauthorized("missing_permission", "permission denied"),
			wantStatus: http.StatusForbidden,
			wantReason: "missing_permission",
			wantError:  "permission denied",
		},
		{
			name:       "not found",
			err:        autherr.NotFound("membership_not_found", "membership not found"),
			wantStatus: http.StatusNotFound,
			wantReason: "membership_not_found",
			wantError:  "membership not found",
		},
		{
			name:       "conflict",
			err:        autherr.Conflict("already_member", "already a member"),
			wantStatus: http.StatusConflict,
			wantReason: "already_member",
			wantError:  "already a member",
		},
		{
			name:       "wrapped invalid state",
			err:        fmt.Errorf("disable membership: %w", autherr.InvalidState("membership_disabled", "membership already disabled")),
			wantStatus: http.StatusConflict,
			wantReason: "membership_disabled",
			wantError:  "membership already disabled",
		},
		{
			name:       "unclassified",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
		{
			name:       "internal kind",
			err:        autherr.Wrap(autherr.KindInternal, "", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAuthError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantReason, body.Reason)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestWriteAuthError_FallsBackToKindName(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAuthError(w, &autherr.Error{Kind: autherr.KindConflict, Reason: "slug_taken"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Error)
}
