// Package storage provides the relational persistence primitives shared by
// the Homestead authorization core.
//
// # Overview
//
// Every store in the core (users, roles, memberships, invitations, sessions)
// is written against the Querier interface so the same method can run on a
// bare *sql.DB or inside a *sql.Tx. Multi-step lifecycle transitions, such as
// disabling a membership together with its sessions, compose store calls
// inside WithTx:
//
//	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
//		store := memberships.WithTx(tx)
//		if err := store.TransitionMembership(ctx, m.ID, m.Status, tenants.StatusDisabled); err != nil {
//			return err
//		}
//		_, err := sessions.RevokeAllForUserTx(ctx, tx, userID)
//		return err
//	})
//
// # Dialect
//
// Queries use PostgreSQL positional placeholders ($1, $2, ...). Placeholders
// are numbered in order of first appearance so the same statements run
// against SQLite in tests (see the sqlitetest subpackage). Timestamps are
// passed from the caller's clock rather than computed with NOW().
//
// # Migrations
//
// RunMigrations applies the versioned PostgreSQL schema in GetMigrations,
// recording applied versions in schema_migrations. It is safe to call on
// every start.
//
// # Backends
//
// The postgres subpackage opens lib/pq connection pools, go-redis clients
// and the S3 client used for audit archives from Config.
package storage
