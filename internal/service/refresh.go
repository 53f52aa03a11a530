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

// RefreshRotationService exchanges a refresh token for a new pair.  Every
// successful exchange overwrites the stored hash, so each refresh token works
// exactly once.  The overwrite is a conditional swap against the hash that
// was compared: of two concurrent exchanges of the same token one wins and
// the other is denied.
type RefreshRotationService struct {
	accounts AccountStore
	hasher   Hasher
	tokens   TokenCodec
	timeout  time.Duration
	log      *logger.Logger
}

// NewRefreshRotationService wires the service from its collaborators.
func NewRefreshRotationService(accounts AccountStore, hasher Hasher, tokens TokenCodec, storeTimeout time.Duration, log *logger.Logger) *RefreshRotationService {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshRotationService{accounts: accounts, hasher: hasher, tokens: tokens, timeout: storeTimeout, log: log}
}

// Refresh rotates raw into a new token pair.
func (s *RefreshRotationService) Refresh(ctx context.Context, raw string) (_ model.TokenPair, err error) {
	ctx, span := startSpan(ctx, "RefreshRotationService.Refresh")
	defer func() { endSpan(span, err) }()

	claims, err := s.tokens.Verify(utils.ProfileRefresh, raw)
	if err != nil {
		s.log.Info("Refresh: token rejected", "reason", tokenFailureKind(err))
		return model.TokenPair{}, ErrAccessDenied
	}

	findCtx, cancel := bound(ctx, s.timeout)
	account, err := s.accounts.FindByID(findCtx, claims.SubjectID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Info("Refresh: token rejected", "reason", "unknown_account", "account_id", claims.SubjectID)
			return model.TokenPair{}, ErrAccessDenied
		}
		return model.TokenPair{}, storeFailure(s.log, "find account by id", err)
	}
	if account.RefreshTokenHash == "" {
		s.log.Info("Refresh: token rejected", "reason", "no_session", "account_id", account.ID)
		return model.TokenPair{}, ErrAccessDenied
	}
	if !s.hasher.VerifyToken(raw, account.RefreshTokenHash) {
		s.log.Warn("Refresh: token rejected", "reason", "not_current", "account_id", account.ID)
		return model.TokenPair{}, ErrAccessDenied
	}
	if account.Status != model.StatusApproved {
		s.log.Info("Refresh: token rejected", "reason", "status", "account_id", account.ID, "status", account.Status)
		return model.TokenPair{}, ErrAccessDenied
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Role)
	if err != nil {
		s.log.Error("Refresh: failed to issue tokens", "account_id", account.ID, "error", err)
		return model.TokenPair{}, ErrInternal
	}
	next, err := s.hasher.HashToken(pair.RefreshToken)
	if err != nil {
		s.log.Error("Refresh: failed to hash refresh token", "account_id", account.ID, "error", err)
		return model.TokenPair{}, ErrInternal
	}

	swapCtx, cancel := bound(ctx, s.timeout)
	defer cancel()
	swapped, err := s.accounts.SwapRefreshHash(swapCtx, account.ID, account.RefreshTokenHash, next)
	if err != nil {
		return model.TokenPair{}, storeFailure(s.log, "rotate refresh hash", err)
	}
	if !swapped {
		s.log.Warn("Refresh: token rejected", "reason", "rotated_concurrently", "account_id", account.ID)
		return model.TokenPair{}, ErrAccessDenied
	}
	s.log.Debug("Refresh: rotated", "account_id", account.ID)
	return pair, nil
}
