// Package repository defines error types that are reused across
// multiple repositories. These sentinel values allow higher layers such
// as the auth service to distinguish between different failure
// scenarios without string-matching driver messages. For example,
// ErrNotFound covers a missing row regardless of which table was
// queried, while ErrEmailExists and ErrUsernameExists surface the
// storage-level uniqueness constraints on the users table.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Soft-deleted
// users count as absent.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert violates the unique email
// constraint on the users table.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when an insert violates the unique
// username constraint on the users table.
var ErrUsernameExists = errors.New("username already exists")
