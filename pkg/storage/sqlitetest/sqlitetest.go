// Package sqlitetest opens in-memory SQLite databases carrying the
// Homestead schema, for package tests that need real SQL behaviour without
// a PostgreSQL server.
package sqlitetest

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var dbCounter atomic.Int64

// Schema mirrors storage.GetMigrations in SQLite dialect
const Schema = `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		email_verified BOOLEAN NOT NULL DEFAULT 0,
		global_role TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL CHECK (scope IN ('PLATFORM', 'TENANT')),
		tenant_id INTEGER REFERENCES tenants(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE role_permissions (
		role_id INTEGER NOT NULL,
		permission_id INTEGER NOT NULL,
		PRIMARY KEY (role_id, permission_id)
	);

	CREATE TABLE user_roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		tenant_id INTEGER,
		granted_by INTEGER,
		granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX idx_user_roles_unique ON user_roles(user_id, role_id, COALESCE(tenant_id, 0));

	CREATE TABLE memberships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		tenant_id INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PENDING_INVITE', 'ACTIVE', 'DISABLED')),
		invited_by INTEGER,
		invited_at TIMESTAMP,
		accepted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, tenant_id)
	);

	CREATE TABLE invitations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		email TEXT NOT NULL,
		role_ids TEXT NOT NULL DEFAULT '[]',
		token_hash TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED', 'EXPIRED', 'REVOKED')),
		invited_by INTEGER,
		expires_at TIMESTAMP NOT NULL,
		accepted_by INTEGER,
		accepted_at TIMESTAMP,
		revoked_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX idx_invitations_pending_email ON invitations(tenant_id, email) WHERE status = 'PENDING';

	CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		tenant_id INTEGER,
		refresh_token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMP NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT 0,
		revoked_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used_at TIMESTAMP
	);

	CREATE TABLE audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		actor_id INTEGER,
		tenant_id INTEGER,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		metadata TEXT
	);
`

// Open returns a fresh in-memory database with the schema applied. The
// database is closed when the test finishes.
//
// The pool is pinned to a single connection, so code under test must run
// every statement of an open transaction on that transaction.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:homestead_%d?mode=memory&cache=shared&_foreign_keys=off", dbCounter.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// InsertUser seeds an active user and returns its ID
func InsertUser(t testing.TB, db *sql.DB, email, globalRole string) int64 {
	t.Helper()

	if globalRole == "" {
		globalRole = "user"
	}
	res, err := db.Exec(
		`INSERT INTO users (email, display_name, is_active, global_role) VALUES (?, ?, 1, ?)`,
		email, email, globalRole)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read user id: %v", err)
	}
	return id
}

// InsertTenant seeds an active tenant and returns its ID
func InsertTenant(t testing.TB, db *sql.DB, slug string) int64 {
	t.Helper()

	res, err := db.Exec(`INSERT INTO tenants (name, slug) VALUES (?, ?)`, slug, slug)
	if err != nil {
		t.Fatalf("Failed to insert tenant: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read tenant id: %v", err)
	}
	return id
}

// InsertMembership seeds a membership row in the given status
func InsertMembership(t testing.TB, db *sql.DB, userID, tenantID int64, status string) int64 {
	t.Helper()

	res, err := db.Exec(
		`INSERT INTO memberships (user_id, tenant_id, status) VALUES (?, ?, ?)`,
		userID, tenantID, status)
	if err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read membership id: %v", err)
	}
	return id
}
