package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusAwaitingApproval, StatusApproved, StatusRejected}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusAwaitingApproval}:  true,
		{StatusAwaitingApproval, StatusApproved}: true,
		{StatusAwaitingApproval, StatusRejected}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseRoleAndStatus(t *testing.T) {
	r, ok := ParseRole(" craftsman ")
	assert.True(t, ok)
	assert.Equal(t, RoleCraftsman, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)

	s, ok := ParseStatus("awaiting_approval")
	assert.True(t, ok)
	assert.Equal(t, StatusAwaitingApproval, s)

	_, ok = ParseStatus("")
	assert.False(t, ok)
}

func TestPublic_OmitsSecrets(t *testing.T) {
	a := Account{
		ID:                1,
		Name:              "Ada",
		Email:             "ada@example.com",
		PasswordHash:      "$2a$10$secret",
		Role:              RoleConsultant,
		Status:            StatusApproved,
		RefreshTokenHash:  "$2a$10$refresh",
		VerificationToken: SingleUseToken{Hash: "verify-hash", ExpiresAt: time.Now()},
		ResetToken:        SingleUseToken{Hash: "reset-hash", ExpiresAt: time.Now()},
	}
	out, err := json.Marshal(a.Public())
	require.NoError(t, err)

	for _, secret := range []string{"$2a$10$secret", "$2a$10$refresh", "verify-hash", "reset-hash"} {
		assert.NotContains(t, string(out), secret)
	}
	assert.Contains(t, string(out), `"email":"ada@example.com"`)
}

func TestAccountPatch(t *testing.T) {
	var p AccountPatch
	assert.True(t, p.IsEmpty())

	p.SetSingleUse(PurposePasswordReset, SingleUseToken{Hash: "h"})
	require.NotNil(t, p.ResetToken)
	assert.Nil(t, p.VerificationToken)
	assert.False(t, p.IsEmpty())

	a := Account{ResetToken: SingleUseToken{Hash: "r"}, VerificationToken: SingleUseToken{Hash: "v"}}
	assert.Equal(t, "r", a.SingleUse(PurposePasswordReset).Hash)
	assert.Equal(t, "v", a.SingleUse(PurposeEmailVerification).Hash)
	assert.True(t, SingleUseToken{}.IsZero())
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}
