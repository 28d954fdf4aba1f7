// Package sessions issues and revokes sign-in sessions.
//
// A session is the revocable credential behind a refresh token. Access
// tokens are short-lived HS256 JWTs naming their session, and Authenticate
// checks the session on every request, so revoking a session is effective
// on the next request that presents any token derived from it.
//
// # Revocation
//
// RevokeAllForUser is idempotent and used by membership disable, password
// reset and explicit admin action. RevokeAllForTenant revokes sessions
// opened for the tenant plus unbound sessions of its active members who
// belong to no other tenant; sessions opened for other tenants survive.
package sessions
