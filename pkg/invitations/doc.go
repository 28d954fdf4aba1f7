// Package invitations implements the tenant invitation lifecycle.
//
// An invitation is created PENDING with a one-shot opaque token; only the
// token's SHA-256 hash is stored and the plaintext is returned exactly once.
// A PENDING invitation ends ACCEPTED, REVOKED or EXPIRED, and every other
// transition is rejected with a reason code:
//
//	invitation_accepted  the token was already used
//	invitation_revoked   an administrator revoked the invitation
//	invitation_expired   the invitation is past its expiry
//
// Invite emails are dispatched after the state change commits, so delivery
// failures never roll back a transition.
package invitations
