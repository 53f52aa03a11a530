package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/repository"
	"github.com/iliyamo/evalauth/internal/utils"
)

// SingleUseTokenIssuer manages the opaque one-time tokens mailed for email
// verification and password reset.  Only the SHA-256 fingerprint of a token
// is stored; the raw value exists in the outgoing email alone.  Each purpose
// holds at most one live token per account, so issuing a new one silently
// invalidates the previous.
type SingleUseTokenIssuer struct {
	accounts AccountStore
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewSingleUseTokenIssuer returns an issuer writing through accounts.
func NewSingleUseTokenIssuer(accounts AccountStore, timeout time.Duration, log *logger.Logger) *SingleUseTokenIssuer {
	if log == nil {
		log = logger.Nop()
	}
	return &SingleUseTokenIssuer{accounts: accounts, timeout: timeout, log: log, now: time.Now}
}

// mint generates a raw token and its stored form.
func (i *SingleUseTokenIssuer) mint(ttl time.Duration) (string, model.SingleUseToken, error) {
	raw, err := utils.NewOpaqueToken()
	if err != nil {
		i.log.Error("Single-use token: random source failed", "error", err)
		return "", model.SingleUseToken{}, ErrInternal
	}
	return raw, model.SingleUseToken{
		Hash:      utils.Fingerprint(raw),
		ExpiresAt: i.now().UTC().Add(ttl).Truncate(time.Second),
	}, nil
}

// Issue stores a fresh token for purpose on account, replacing any live one,
// and returns the raw value for delivery.
func (i *SingleUseTokenIssuer) Issue(ctx context.Context, account model.Account, purpose model.TokenPurpose, ttl time.Duration) (string, error) {
	raw, tok, err := i.mint(ttl)
	if err != nil {
		return "", err
	}
	var patch model.AccountPatch
	patch.SetSingleUse(purpose, tok)

	ctx, cancel := bound(ctx, i.timeout)
	defer cancel()
	if err := i.accounts.Update(ctx, account.ID, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", storeFailure(i.log, "store single-use token", err)
	}
	return raw, nil
}

// Consume redeems raw for purpose.  It fails with ErrNotFound when no account
// holds the token and ErrExpired when the token is past its expiry; neither
// case changes stored state.  On success the token is cleared and the
// account, as it was before clearing apart from the token, is returned.
func (i *SingleUseTokenIssuer) Consume(ctx context.Context, raw string, purpose model.TokenPurpose) (model.Account, error) {
	if raw == "" {
		return model.Account{}, ErrNotFound
	}
	hash := utils.Fingerprint(raw)

	findCtx, cancel := bound(ctx, i.timeout)
	account, err := i.accounts.FindBySingleUseToken(findCtx, purpose, hash)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, storeFailure(i.log, "find single-use token", err)
	}

	tok := account.SingleUse(purpose)
	if tok.Hash != hash {
		return model.Account{}, ErrNotFound
	}
	if !i.now().Before(tok.ExpiresAt) {
		return model.Account{}, ErrExpired
	}

	consumeCtx, cancel := bound(ctx, i.timeout)
	defer cancel()
	ok, err := i.accounts.ConsumeSingleUseToken(consumeCtx, account.ID, purpose, hash)
	if err != nil {
		return model.Account{}, storeFailure(i.log, "consume single-use token", err)
	}
	if !ok {
		// Redeemed or replaced between lookup and consumption.
		return model.Account{}, ErrNotFound
	}

	if purpose == model.PurposePasswordReset {
		account.ResetToken = model.SingleUseToken{}
	} else {
		account.VerificationToken = model.SingleUseToken{}
	}
	return account, nil
}
