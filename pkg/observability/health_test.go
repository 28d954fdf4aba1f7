package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okCheck(context.Context) (DependencyStatus, error) { return DependencyStatus{}, nil }

func failingCheck(context.Context) (DependencyStatus, error) {
	return DependencyStatus{}, errors.New("connection refused")
}

func TestHealthChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthChecker)
		status string
	}{
		{"no checks", func(*HealthChecker) {}, StatusHealthy},
		{"all healthy", func(h *HealthChecker) {
			h.AddCheck("database", true, okCheck).AddCheck("redis", false, okCheck)
		}, StatusHealthy},
		{"optional failure degrades", func(h *HealthChecker) {
			h.AddCheck("database", true, okCheck).AddCheck("redis", false, failingCheck)
		}, StatusDegraded},
		{"critical failure", func(h *HealthChecker) {
			h.AddCheck("database", true, failingCheck).AddCheck("redis", false, okCheck)
		}, StatusUnhealthy},
		{"reported degradation", func(h *HealthChecker) {
			h.AddCheck("database", true, func(context.Context) (DependencyStatus, error) {
				return DependencyStatus{Status: StatusDegraded, Message: "connection pool exhausted"}, nil
			})
		}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.setup(h)
			status := h.Check(context.Background())
			assert.Equal(t, tt.status, status.Status)
			assert.Len(t, status.Dependencies, len(h.Names()))
		})
	}
}

func TestHealthChecker_Routes(t *testing.T) {
	router := mux.NewRouter()
	h := NewHealthChecker("1.2.3").AddCheck("database", true, failingCheck)
	RegisterHealthRoutes(router, h)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "connection refused", status.Dependencies["database"].Message)
}

func TestDatabaseCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	dep, err := DatabaseCheck(db)(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dep.Status)

	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("server closed the connection"))
	_, err = DatabaseCheck(db)(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := RedisCheck(client)(context.Background())
	assert.NoError(t, err)

	mr.Close()
	_, err = RedisCheck(client)(context.Background())
	assert.Error(t, err)
}
