package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage/sqlitetest"
)

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(db).WithClock(func() time.Time { return now })
	tenantID := sqlitetest.InsertTenant(t, db, "acme")

	session := &Session{
		ID:               "s-1",
		UserID:           7,
		TenantID:         &tenantID,
		RefreshTokenHash: "hash-1",
		ExpiresAt:        now.Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, tenantID, *got.TenantID)
	assert.False(t, got.Revoked)
	assert.Nil(t, got.LastUsedAt)

	byHash, err := store.GetByRefreshHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", byHash.ID)

	_, err = store.Get(ctx, "missing")
	assert.True(t, autherr.IsKind(err, autherr.KindNotFound))

	require.NoError(t, store.Rotate(ctx, "s-1", "hash-1", "hash-2", now.Add(2*time.Hour)))
	err = store.Rotate(ctx, "s-1", "hash-1", "hash-3", now.Add(2*time.Hour))
	assert.True(t, autherr.IsKind(err, autherr.KindUnauthenticated))

	n, err := store.Revoke(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	err = store.Rotate(ctx, "s-1", "hash-2", "hash-4", now.Add(2*time.Hour))
	assert.True(t, autherr.IsKind(err, autherr.KindUnauthenticated))

	got, err = store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
	assert.False(t, got.Active(now))
}

func TestStore_MembershipStatus(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	store := NewStore(db)
	userID := sqlitetest.InsertUser(t, db, "agent@example.com", "")
	tenantID := sqlitetest.InsertTenant(t, db, "acme")
	sqlitetest.InsertMembership(t, db, userID, tenantID, "DISABLED")

	status, err := store.MembershipStatus(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "DISABLED", status)

	status, err = store.MembershipStatus(ctx, userID, tenantID+1)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestStore_TenantStatus(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	store := NewStore(db)
	tenantID := sqlitetest.InsertTenant(t, db, "acme")

	status, err := store.TenantStatus(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "active", status)

	status, err = store.TenantStatus(ctx, tenantID+1)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestStore_DatabaseErrors(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectExec("UPDATE sessions SET revoked = TRUE").
		WillReturnError(errors.New("connection reset"))
	_, err = store.RevokeAllForUser(ctx, 1)
	assert.ErrorContains(t, err, "failed to revoke user sessions")
	assert.Equal(t, autherr.KindInternal, autherr.KindOf(err))

	mock.ExpectQuery("SELECT status FROM memberships").
		WillReturnError(errors.New("connection reset"))
	_, err = store.MembershipStatus(ctx, 1, 2)
	assert.ErrorContains(t, err, "failed to load membership")

	assert.NoError(t, mock.ExpectationsWereMet())
}
