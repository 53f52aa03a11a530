package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// opaqueTokenBytes is the entropy of single-use tokens (64 hex chars).
const opaqueTokenBytes = 32

// NewOpaqueToken returns a cryptographically random hex string used for email
// verification and password reset links.
func NewOpaqueToken() (string, error) {
	return randomHex(opaqueTokenBytes)
}

// Fingerprint returns the SHA-256 hex digest of raw.  It is deterministic, so
// stores can index by it without ever holding the usable credential.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
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
