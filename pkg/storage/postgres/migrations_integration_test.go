//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/homestead/pkg/storage"
)

func TestMigrationsAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("homestead_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.PostgresURL = connStr

	db, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, storage.RunMigrations(ctx, db))
	// Second run is a no-op
	require.NoError(t, storage.RunMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(storage.GetMigrations()), count)

	t.Run("user role assignments are unique per tenant", func(t *testing.T) {
		var userID, tenantID, roleID int64
		require.NoError(t, db.QueryRowContext(ctx,
			"INSERT INTO users (email) VALUES ('agent@example.com') RETURNING id").Scan(&userID))
		require.NoError(t, db.QueryRowContext(ctx,
			"INSERT INTO tenants (name, slug) VALUES ('Acme Realty', 'acme') RETURNING id").Scan(&tenantID))
		require.NoError(t, db.QueryRowContext(ctx,
			"INSERT INTO roles (name, scope) VALUES ('Agent', 'TENANT') RETURNING id").Scan(&roleID))

		_, err := db.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role_id, tenant_id) VALUES ($1, $2, $3)", userID, roleID, tenantID)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role_id, tenant_id) VALUES ($1, $2, $3)", userID, roleID, tenantID)
		assert.Error(t, err)
	})

	t.Run("one pending invitation per tenant and email", func(t *testing.T) {
		var tenantID int64
		require.NoError(t, db.QueryRowContext(ctx,
			"INSERT INTO tenants (name, slug) VALUES ('Bayside Homes', 'bayside') RETURNING id").Scan(&tenantID))

		insert := `INSERT INTO invitations (tenant_id, email, token_hash, status, expires_at)
			VALUES ($1, 'dana@example.com', $2, $3, NOW() + INTERVAL '7 days')`
		_, err := db.ExecContext(ctx, insert, tenantID, "hash-1", "PENDING")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, insert, tenantID, "hash-2", "ACCEPTED")
		require.NoError(t, err)

		_, err = db.ExecContext(ctx, insert, tenantID, "hash-3", "PENDING")
		require.Error(t, err)
		assert.True(t, storage.IsUniqueViolation(err))
	})

	t.Run("scope is constrained", func(t *testing.T) {
		_, err := db.ExecContext(ctx, "INSERT INTO roles (name, scope) VALUES ('Broken', 'GLOBAL')")
		assert.Error(t, err)
	})
}
