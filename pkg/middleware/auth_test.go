package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/autherr"
)

type stubAuthenticator struct {
	principals map[string]*auth.Principal
	calls      []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	s.calls = append(s.calls, token)
	if p, ok := s.principals[token]; ok {
		return p, nil
	}
	return nil, autherr.Unauthenticated("invalid access token")
}

func newStubAuthenticator() *stubAuthenticator {
	return &stubAuthenticator{principals: map[string]*auth.Principal{
		"good-token": {User: &auth.User{ID: 7, Email: "alice@example.com"}, SessionID: "sess-1"},
	}}
}

func TestAuthMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		optional   bool
		wantStatus int
		wantUser   int64
	}{
		{"valid bearer token", "Bearer good-token", false, http.StatusOK, 7},
		{"lowercase scheme", "bearer good-token", false, http.StatusOK, 7},
		{"missing header", "", false, http.StatusUnauthorized, 0},
		{"missing header optional", "", true, http.StatusOK, 0},
		{"wrong scheme", "Basic Zm9vOmJhcg==", false, http.StatusUnauthorized, 0},
		{"empty token", "Bearer ", false, http.StatusUnauthorized, 0},
		{"rejected token", "Bearer revoked-token", false, http.StatusUnauthorized, 0},
		{"rejected token optional", "Bearer revoked-token", true, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(newStubAuthenticator(), tt.optional, nil)
			var gotUser int64
			handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = GetPrincipal(r).UserID()
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/tenants/1/members", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), `"reason":"unauthenticated"`)
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuthMiddleware_PassesTokenThrough(t *testing.T) {
	stub := newStubAuthenticator()
	handler := NewAuthMiddleware(stub, false, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		require.NotNil(t, p)
		assert.Equal(t, "sess-1", p.SessionID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"good-token"}, stub.calls)
}

func TestGetPrincipal_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetPrincipal(req))
}
