package model

import "time"

// Role values stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types with appropriate JSON tags.
//
// The password is only ever stored as a bcrypt hash. EmailVerifiedAt
// is nil until the user completes the email verification flow.
// DeletedAt marks a soft delete; soft-deleted users are excluded
// from all normal lookups.
//
// Fields:
//  ID              – primary key identifier of the user.
//  Email           – unique email address (among non-deleted users).
//  Username        – unique username (among non-deleted users).
//  PasswordHash    – bcrypt hashed password.
//  FirstName       – optional given name.
//  LastName        – optional family name.
//  Role            – "user" or "admin".
//  EmailVerifiedAt – when the email was verified (nil if unverified).
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
//  DeletedAt       – soft-delete timestamp (nil if active).
type User struct {
	ID              uint64     // users.id
	Email           string     // users.email
	Username        string     // users.username
	PasswordHash    string     // users.password_hash
	FirstName       string     // users.first_name
	LastName        string     // users.last_name
	Role            string     // users.role
	EmailVerifiedAt *time.Time // users.email_verified_at (nullable)
	CreatedAt       time.Time  // users.created_at
	UpdatedAt       time.Time  // users.updated_at
	DeletedAt       *time.Time // users.deleted_at (nullable)
}

// Verified reports whether the user has completed email verification.
func (u *User) Verified() bool { return u.EmailVerifiedAt != nil }
