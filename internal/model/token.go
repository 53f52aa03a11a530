package model

import "time"

// TokenPair is returned by login and refresh.  It is never persisted as a
// unit: the access token is stateless and the refresh token is stored only as
// a bcrypt hash on the account.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
