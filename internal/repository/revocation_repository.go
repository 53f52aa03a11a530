package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/utils"
)

// RevocationRepo is the shared denylist of revoked bearer tokens.  Entries
// are keyed by the SHA-256 fingerprint of the raw token, never the token
// itself, and expire together with the token they block.
//
// Membership checks fail open: when Redis cannot answer within the timeout a
// token is treated as not revoked and a warning is logged.  Operators trade
// strict logout enforcement for availability during a Redis outage.
type RevocationRepo struct {
	rdb        redis.Cmdable
	prefix     string
	defaultTTL time.Duration
	timeout    time.Duration
	log        *logger.Logger
}

// NewRevocationRepo returns a denylist backed by rdb.
func NewRevocationRepo(rdb redis.Cmdable, prefix string, defaultTTL, timeout time.Duration, log *logger.Logger) *RevocationRepo {
	if log == nil {
		log = logger.Nop()
	}
	return &RevocationRepo{rdb: rdb, prefix: prefix, defaultTTL: defaultTTL, timeout: timeout, log: log}
}

func (r *RevocationRepo) key(raw string) string {
	return r.prefix + utils.Fingerprint(raw)
}

func (r *RevocationRepo) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Revoke adds raw to the denylist for ttl.  A non-positive ttl falls back to
// the configured default.  Sub-second remainders are rounded up so the entry
// never expires before the token does.
func (r *RevocationRepo) Revoke(ctx context.Context, raw string, ttl time.Duration) error {
	if raw == "" {
		return errors.New("empty token")
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.rdb.Set(ctx, r.key(raw), "1", ttl).Err(); err != nil {
		r.log.Error("Revocation store: failed to revoke token", "error", err)
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether raw is on the denylist.  Store errors are logged
// and reported as not revoked.
func (r *RevocationRepo) IsRevoked(ctx context.Context, raw string) bool {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	n, err := r.rdb.Exists(ctx, r.key(raw)).Result()
	if err != nil {
		r.log.Warn("Revocation store: membership check failed, allowing token", "error", err)
		return false
	}
	return n > 0
}

// Ping reports whether the store is reachable.
func (r *RevocationRepo) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}
