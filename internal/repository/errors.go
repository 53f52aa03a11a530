// Package repository holds the persistence adapters of the auth service: the
// MySQL account store and the Redis revocation list.  The sentinel values
// below let the service layer tell a missing row from an infrastructure
// failure without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by Create when the unique email index rejects
// the insert.
var ErrEmailExists = errors.New("email already exists")

// ErrRevocationUnavailable is returned by Revoke when the revocation list
// could not record the entry.
var ErrRevocationUnavailable = errors.New("revocation store unavailable")
