package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/utils"
)

func TestSingleUseTokenIssuer_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Duration
		wantErr error
	}{
		{name: "one second past expiry", expires: -time.Second, wantErr: ErrExpired},
		{name: "one hour left", expires: time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			ctx := context.Background()
			raw := "opaque-reset-token"
			tok := model.SingleUseToken{Hash: utils.Fingerprint(raw), ExpiresAt: time.Now().Add(tt.expires)}
			acc, err := e.store.Create(ctx, model.Account{
				Name: "A", Email: "a@x.com", Role: model.RoleConsultant, Status: model.StatusApproved, ResetToken: tok,
			})
			require.NoError(t, err)

			got, err := e.singleUse.Consume(ctx, raw, model.PurposePasswordReset)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tok.Hash, e.store.get(acc.ID).ResetToken.Hash, "rejection must not clear the token")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, acc.ID, got.ID)
			assert.True(t, got.ResetToken.IsZero())
			assert.True(t, e.store.get(acc.ID).ResetToken.IsZero())
		})
	}
}

func TestSingleUseTokenIssuer_PurposesAreSeparate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	acc, err := e.store.Create(ctx, model.Account{Name: "A", Email: "a@x.com", Role: model.RoleConsultant, Status: model.StatusPending})
	require.NoError(t, err)

	raw, err := e.singleUse.Issue(ctx, acc, model.PurposeEmailVerification, time.Hour)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	_, err = e.singleUse.Consume(ctx, raw, model.PurposePasswordReset)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.singleUse.Consume(ctx, raw, model.PurposeEmailVerification)
	require.NoError(t, err)
}

func TestSingleUseTokenIssuer_IssueUnknownAccount(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.singleUse.Issue(context.Background(), model.Account{ID: 42}, model.PurposePasswordReset, time.Hour)
	require.ErrorIs(t, err, ErrNotFound)
}
