package auth

import (
	"errors"
	"fmt"
	"strings"
)

// The failure kinds of the session lifecycle are a closed set of
// sentinels. Handlers match them with errors.Is and map each to an HTTP
// status; callers never need to string-match messages. The credential
// and token errors deliberately carry generic messages so that failure
// reasons cannot be used to enumerate accounts or probe token state.
var (
	// ErrInvalidCredentials covers both "no such user" and "wrong
	// password"; the two must stay indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified rejects logins before the email verification
	// flow has completed.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrInvalidRefreshToken covers malformed, unknown and tampered
	// refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrRefreshTokenExpired is returned once per expired token: the
	// failing call also purges the row, so a retry sees
	// ErrInvalidRefreshToken instead.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrInvalidVerificationToken covers malformed, unknown, tampered
	// and already-consumed verification tokens.
	ErrInvalidVerificationToken = errors.New("invalid verification token")

	// ErrVerificationTokenExpired is returned when a verification token
	// has outlived its window; the row is purged as a side effect.
	ErrVerificationTokenExpired = errors.New("verification token expired")

	// ErrEmailTaken and ErrUsernameTaken surface registration
	// uniqueness conflicts, whether caught by the pre-check or by the
	// storage constraint.
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field input failures so clients can
// render them next to the offending form fields.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}
