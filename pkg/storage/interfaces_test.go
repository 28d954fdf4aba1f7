package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = WithTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE sessions SET revoked = TRUE")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WithTx(ctx, db, func(tx *sql.Tx) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		called := false
		err = WithTx(ctx, db, func(tx *sql.Tx) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("commit failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = WithTx(ctx, db, func(tx *sql.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
	})
}

func TestNullableHelpers(t *testing.T) {
	id := int64(42)
	assert.Equal(t, sql.NullInt64{Int64: 42, Valid: true}, NullInt64(&id))
	assert.Equal(t, sql.NullInt64{}, NullInt64(nil))

	assert.Nil(t, Int64Ptr(sql.NullInt64{}))
	require.NotNil(t, Int64Ptr(sql.NullInt64{Int64: 7, Valid: true}))
	assert.Equal(t, int64(7), *Int64Ptr(sql.NullInt64{Int64: 7, Valid: true}))

	assert.Nil(t, TimePtr(sql.NullTime{}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, -1, cfg.RedisDB)
	assert.NotEmpty(t, cfg.PostgresURL)
}
