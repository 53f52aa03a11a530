package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretTooLong is returned when a plaintext exceeds bcrypt's 72-byte input.
var ErrSecretTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher hashes account passwords and refresh tokens with bcrypt.
// Every call to Hash draws a fresh salt; Verify delegates the comparison to
// bcrypt, which is constant time.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using the given bcrypt cost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares bcrypt hash and plain password.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashToken hashes a bearer token for storage at rest.  Signed tokens are far
// longer than bcrypt's 72-byte window and share a common header, so the raw
// value is reduced to its SHA-256 fingerprint first.
func (h *PasswordHasher) HashToken(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty token")
	}
	return h.Hash(Fingerprint(raw))
}

// VerifyToken compares a presented bearer token against a HashToken digest.
func (h *PasswordHasher) VerifyToken(raw, hash string) bool {
	if raw == "" {
		return false
	}
	return h.Verify(Fingerprint(raw), hash)
}
