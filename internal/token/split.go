// Package token implements the credential primitives of the auth
// service: split selector/verifier tokens used for refresh and email
// verification flows, and signed JWT access tokens with server-side
// revocation.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// splitRandBytes is the entropy of each half of a split token. 32 bytes
// encode to 64 hex characters.
const splitRandBytes = 32

// ErrMalformed is returned by Parse when the input is not exactly two
// non-empty dot-separated parts.
var ErrMalformed = errors.New("malformed token")

// Split is a two-part token: a non-secret selector used as an indexed
// lookup key and a secret verifier whose hash is the only persisted
// secret material. The externally visible string form is
// "<selector>.<verifier>".
type Split struct {
	Selector string
	Verifier string
}

// NewSplit draws two independent cryptographically random values and
// returns them as a Split. Each half is 64 hex characters.
func NewSplit() (Split, error) {
	sel, err := randomHex(splitRandBytes)
	if err != nil {
		return Split{}, err
	}
	ver, err := randomHex(splitRandBytes)
	if err != nil {
		return Split{}, err
	}
	return Split{Selector: sel, Verifier: ver}, nil
}

// String serializes the token for the client.
func (s Split) String() string { return s.Selector + "." + s.Verifier }

// ParseSplit splits a client-supplied token string into its two halves.
// Anything other than exactly two non-empty parts is rejected.
func ParseSplit(raw string) (Split, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Split{}, ErrMalformed
	}
	return Split{Selector: parts[0], Verifier: parts[1]}, nil
}

// HashVerifier returns the SHA-256 hex digest of the verifier half.
// Only this hash is ever stored; a leaked database row cannot be
// replayed as a token.
func HashVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// MatchVerifier compares a supplied verifier against a stored hash in
// constant time.
func MatchVerifier(verifier, storedHash string) bool {
	h := HashVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(h), []byte(storedHash)) == 1
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
