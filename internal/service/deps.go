// Package service implements the authentication and session lifecycle:
// registration, login, refresh rotation, logout, single-use email tokens and
// the administrative approval step.  Collaborators are injected through the
// interfaces below.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/utils"
)

// AccountStore is the persistence collaborator owning account rows.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	FindByID(ctx context.Context, id uint64) (model.Account, error)
	FindBySingleUseToken(ctx context.Context, purpose model.TokenPurpose, hash string) (model.Account, error)
	Create(ctx context.Context, a model.Account) (model.Account, error)
	Update(ctx context.Context, id uint64, p model.AccountPatch) error
	SwapRefreshHash(ctx context.Context, id uint64, expected, next string) (bool, error)
	ConsumeSingleUseToken(ctx context.Context, id uint64, purpose model.TokenPurpose, hash string) (bool, error)
	List(ctx context.Context, f model.AccountFilter) ([]model.Account, error)
}

// RevocationStore is the shared denylist of bearer tokens.  IsRevoked never
// fails; implementations absorb store errors as "not revoked".
type RevocationStore interface {
	Revoke(ctx context.Context, raw string, ttl time.Duration) error
	IsRevoked(ctx context.Context, raw string) bool
}

// Mailer delivers single-use token links.
type Mailer interface {
	SendVerificationLink(ctx context.Context, email, token string) error
	SendResetLink(ctx context.Context, email, token string) error
}

// Hasher hashes passwords and refresh tokens.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
	HashToken(raw string) (string, error)
	VerifyToken(raw, hash string) bool
}

// TokenCodec issues and verifies bearer tokens.
type TokenCodec interface {
	IssuePair(subjectID uint64, role model.Role) (model.TokenPair, error)
	Verify(p utils.Profile, raw string) (utils.Claims, error)
}

var tracer = otel.Tracer("github.com/iliyamo/evalauth/internal/service")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// bound limits a single collaborator call to d.
func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeFailure logs an unexpected account store error in full and returns
// the opaque kind surfaced to callers.
func storeFailure(log *logger.Logger, op string, err error) error {
	log.Error("Account store: "+op+" failed", "error", err)
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, op)
}

// tokenFailureKind names a verification failure for logs.
func tokenFailureKind(err error) string {
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return "expired"
	case errors.Is(err, utils.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "malformed_claims"
	}
}

// secretsEqual compares two secrets in constant time regardless of length.
func secretsEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
