package model

import (
	"strings"
	"time"
)

// Role is the enumerated account role.
type Role string

const (
	RoleConsultant Role = "CONSULTANT"
	RoleCraftsman  Role = "CRAFTSMAN"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleConsultant, RoleCraftsman, RoleAdmin:
		return r, true
	}
	return "", false
}

// Status is the account lifecycle state.
//
//	PENDING ──verify email──▶ AWAITING_APPROVAL ──admin──▶ APPROVED | REJECTED
//
// APPROVED and REJECTED are terminal.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
)

// ParseStatus normalizes s and reports whether it names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusAwaitingApproval, StatusApproved, StatusRejected:
		return st, true
	}
	return "", false
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusAwaitingApproval
	case StatusAwaitingApproval:
		return to == StatusApproved || to == StatusRejected
	}
	return false
}

// TokenPurpose scopes a single-use token.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// SingleUseToken is the stored half of an opaque one-time token.  Hash is the
// SHA-256 hex digest of the raw value mailed to the user; an empty Hash means
// no live token.
type SingleUseToken struct {
	Hash      string
	ExpiresAt time.Time
}

// IsZero reports whether no token is stored.
func (t SingleUseToken) IsZero() bool { return t.Hash == "" }

// Account mirrors the `accounts` table.  It is owned by the account store;
// the service layer reads it and requests partial updates through
// AccountPatch.
type Account struct {
	ID                uint64
	Name              string
	Email             string
	PasswordHash      string
	Role              Role
	Status            Status
	EmailVerified     bool
	RefreshTokenHash  string // empty when logged out or never issued
	VerificationToken SingleUseToken
	ResetToken        SingleUseToken
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SingleUse returns the stored token for purpose.
func (a Account) SingleUse(purpose TokenPurpose) SingleUseToken {
	if purpose == PurposePasswordReset {
		return a.ResetToken
	}
	return a.VerificationToken
}

// AccountPatch lists the columns an update may touch.  Nil fields are left
// unchanged.  A pointer to an empty RefreshTokenHash or a zero SingleUseToken
// stores NULL.
type AccountPatch struct {
	PasswordHash      *string
	Status            *Status
	EmailVerified     *bool
	RefreshTokenHash  *string
	VerificationToken *SingleUseToken
	ResetToken        *SingleUseToken
}

// SetSingleUse sets the token field matching purpose.
func (p *AccountPatch) SetSingleUse(purpose TokenPurpose, tok SingleUseToken) {
	if purpose == PurposePasswordReset {
		p.ResetToken = &tok
		return
	}
	p.VerificationToken = &tok
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.PasswordHash == nil && p.Status == nil && p.EmailVerified == nil &&
		p.RefreshTokenHash == nil && p.VerificationToken == nil && p.ResetToken == nil
}

// AccountFilter narrows administrative listings.  Zero values match all.
type AccountFilter struct {
	Role   Role
	Status Status
	Limit  int
	Offset int
}

// PublicAccount is the only account shape that leaves the service.  Fields
// are copied one by one in Public so a new sensitive column never leaks by
// default.
type PublicAccount struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public projects the account onto its allow-listed public view.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Role:          a.Role,
		Status:        a.Status,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// NormalizeEmail lower-cases and trims an address the same way on every path.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
