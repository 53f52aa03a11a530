package service

import "errors"

// Errors returned by the services.  Validation-shaped errors carry a message
// fit for the caller; authentication failures collapse into ErrAccessDenied
// or ErrInvalidCredentials so callers cannot tell which check failed.
var (
	ErrAlreadyExists      = errors.New("account already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrAwaitingApproval   = errors.New("account awaiting approval")
	ErrRejected           = errors.New("account rejected")
	ErrExpired            = errors.New("token expired")
	ErrAccessDenied       = errors.New("access denied")
	ErrStoreUnavailable   = errors.New("account store unavailable")
	ErrRevocationFailed   = errors.New("token revocation failed")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)
