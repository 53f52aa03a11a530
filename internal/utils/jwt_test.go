package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evalauth/internal/model"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec("evalauth-test",
		ProfileConfig{Secret: "access-secret-access-secret", TTL: 15 * time.Minute},
		ProfileConfig{Secret: "refresh-secret-refresh-secret", TTL: 7 * 24 * time.Hour},
	)
	require.NoError(t, err)
	return c
}

func TestNewTokenCodec_RejectsBadProfiles(t *testing.T) {
	tests := []struct {
		name    string
		access  ProfileConfig
		refresh ProfileConfig
	}{
		{"missing access secret", ProfileConfig{TTL: time.Minute}, ProfileConfig{Secret: "r", TTL: time.Hour}},
		{"zero refresh ttl", ProfileConfig{Secret: "a", TTL: time.Minute}, ProfileConfig{Secret: "r"}},
		{"shared secret", ProfileConfig{Secret: "same", TTL: time.Minute}, ProfileConfig{Secret: "same", TTL: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenCodec("", tt.access, tt.refresh)
			require.Error(t, err)
		})
	}
}

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	c := newTestCodec(t)

	pair, err := c.IssuePair(42, model.RoleCraftsman)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.AccessExpiresAt.Before(pair.RefreshExpiresAt))

	access, err := c.Verify(ProfileAccess, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), access.SubjectID)
	assert.Equal(t, model.RoleCraftsman, access.Role)
	assert.Equal(t, ProfileAccess, access.Profile)
	assert.NotEmpty(t, access.ID)

	refresh, err := c.Verify(ProfileRefresh, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), refresh.SubjectID)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestTokenCodec_TokensAreUniqueWithinOneSecond(t *testing.T) {
	c := newTestCodec(t)
	a, err := c.Issue(ProfileRefresh, 1, model.RoleConsultant)
	require.NoError(t, err)
	b, err := c.Issue(ProfileRefresh, 1, model.RoleConsultant)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestTokenCodec_ProfilesDoNotCross(t *testing.T) {
	c := newTestCodec(t)
	pair, err := c.IssuePair(7, model.RoleConsultant)
	require.NoError(t, err)

	_, err = c.Verify(ProfileRefresh, pair.AccessToken)
	require.ErrorIs(t, err, ErrSignatureInvalid)

	_, err = c.Verify(ProfileAccess, pair.RefreshToken)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_Expired(t *testing.T) {
	c := newTestCodec(t)
	c.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := c.Issue(ProfileAccess, 1, model.RoleConsultant)
	require.NoError(t, err)

	c.now = time.Now
	_, err = c.Verify(ProfileAccess, tok.Token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodec_TamperedSignature(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue(ProfileAccess, 1, model.RoleConsultant)
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	forged := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(ProfileAccess, forged)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t)
	claims := tokenClaims{
		Role: string(model.RoleAdmin),
		Type: string(ProfileAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "evalauth-test",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret-access-secret"))
	require.NoError(t, err)

	_, err = c.Verify(ProfileAccess, signed)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_MalformedClaims(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Verify(ProfileAccess, "not-a-token")
	require.ErrorIs(t, err, ErrMalformedClaims)

	claims := tokenClaims{
		Role: "SUPERUSER",
		Type: string(ProfileAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "evalauth-test",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret-access-secret"))
	require.NoError(t, err)
	_, err = c.Verify(ProfileAccess, signed)
	require.ErrorIs(t, err, ErrMalformedClaims)
}
