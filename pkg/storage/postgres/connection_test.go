package postgres

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/storage"
)

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := storage.DefaultConfig()
	cfg.PostgresMaxConns = 7
	cfg.PostgresMaxLifetime = time.Minute

	ConfigurePool(db, cfg)

	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}
