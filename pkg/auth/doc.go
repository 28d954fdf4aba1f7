// Package auth provides the credential and token primitives used by the
// Homestead authorization core.
//
// # Overview
//
// The package owns user accounts and the building blocks that sessions and
// invitations are made of. It does not decide what a user may do; that is
// the job of the rbac resolver and the authz gate.
//
// # Key Components
//
// Passwords: bcrypt hashing with a configurable cost.
//
//	hash, err := auth.HashPassword("correct horse", bcrypt.DefaultCost)
//	err = auth.VerifyPassword(hash, "correct horse")
//
// Opaque tokens: 32 random bytes, base64url encoded behind a prefix. Only
// the SHA-256 hex digest is ever stored, so a token is usable exactly as
// long as its digest row says so.
//
//	token, hash, err := auth.NewTokenGenerator().Generate()
//	// token: hst_<base64url>, hash: 64 hex chars
//
// Access tokens: short-lived HS256 JWTs naming the user (sub) and the
// session (sid) they were issued for. Revoking the session invalidates every
// access token issued for it on next use.
//
//	signer := auth.NewAccessTokenSigner(secret, "homestead")
//	token, expiresAt, err := signer.Sign(user.ID, sessionID, tenantID, 15*time.Minute)
//	claims, err := signer.Parse(token)
//
// Users: UserStore persists accounts in the users table. Emails are stored
// lower-cased and trimmed so lookups are case-insensitive.
//
// Principal: the authenticated caller carried through request contexts.
package auth
