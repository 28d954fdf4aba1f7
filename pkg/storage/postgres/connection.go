package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/homestead/pkg/storage"
)

// Connect opens the primary PostgreSQL pool and verifies it is reachable
func Connect(ctx context.Context, config storage.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ConfigurePool(db, config)

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigurePool applies pool limits from config
func ConfigurePool(db *sql.DB, config storage.Config) {
	if config.PostgresMaxConns > 0 {
		db.SetMaxOpenConns(config.PostgresMaxConns)
	}
	if config.PostgresMinConns > 0 {
		db.SetMaxIdleConns(config.PostgresMinConns)
	}
	if config.PostgresMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.PostgresMaxLifetime)
	}
	if config.PostgresMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.PostgresMaxIdleTime)
	}
}
