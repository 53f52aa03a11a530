package service

import (
	"context"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/utils"
)

// Authorizer gates protected calls: the access token must verify and must
// not be on the denylist.
type Authorizer struct {
	tokens      TokenCodec
	revocations RevocationStore
	log         *logger.Logger
}

func NewAuthorizer(tokens TokenCodec, revocations RevocationStore, log *logger.Logger) *Authorizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Authorizer{tokens: tokens, revocations: revocations, log: log}
}

// Authorize returns the claims of rawAccess or ErrAccessDenied.
func (a *Authorizer) Authorize(ctx context.Context, rawAccess string) (utils.Claims, error) {
	claims, err := a.tokens.Verify(utils.ProfileAccess, rawAccess)
	if err != nil {
		a.log.Debug("Authorizer: token rejected", "reason", tokenFailureKind(err))
		return utils.Claims{}, ErrAccessDenied
	}
	if a.revocations.IsRevoked(ctx, rawAccess) {
		a.log.Debug("Authorizer: token rejected", "reason", "revoked", "account_id", claims.SubjectID)
		return utils.Claims{}, ErrAccessDenied
	}
	return claims, nil
}
