package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table. Each
// refresh token belongs to a user. The externally visible token string
// is "<selector>.<verifier>"; only the selector and the SHA-256 hash of
// the verifier are stored. The selector is the indexed lookup key, the
// verifier hash is the secret check.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – owner of the token (cascade-deleted with the user).
//  Selector     – random, unique, non-secret lookup key.
//  VerifierHash – SHA-256 hex digest of the verifier half.
//  ExpiresAt    – expiration timestamp of the token.
//  CreatedAt    – timestamp of creation.
type RefreshToken struct {
	ID           uint64    // refresh_tokens.id
	UserID       uint64    // refresh_tokens.user_id
	Selector     string    // refresh_tokens.selector
	VerifierHash string    // refresh_tokens.verifier_hash
	ExpiresAt    time.Time // refresh_tokens.expires_at
	CreatedAt    time.Time // refresh_tokens.created_at
}

// Expired reports whether the token's expiry has passed at the given time.
func (t *RefreshToken) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }

// EmailVerificationToken models an entry in the
// `email_verification_tokens` table. It has the same selector/verifier
// split shape as RefreshToken, with a shorter validity window. At most
// one live verification token exists per user: issuing a new one deletes
// all prior ones first.
type EmailVerificationToken struct {
	ID           uint64    // email_verification_tokens.id
	UserID       uint64    // email_verification_tokens.user_id
	Selector     string    // email_verification_tokens.selector
	VerifierHash string    // email_verification_tokens.verifier_hash
	ExpiresAt    time.Time // email_verification_tokens.expires_at
	CreatedAt    time.Time // email_verification_tokens.created_at
}

// Expired reports whether the token's expiry has passed at the given time.
func (t *EmailVerificationToken) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }
