package utils // package utils provides token signing, hashing and random helpers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/evalauth/internal/model"
)

// Profile selects one of the two independent signing configurations.
type Profile string

const (
	ProfileAccess  Profile = "access"
	ProfileRefresh Profile = "refresh"
)

// Verification failures.  Callers reject all three the same way; the
// distinction exists for logs.
var (
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedClaims  = errors.New("token claims malformed")
)

// ProfileConfig is the secret and lifetime of one profile.
type ProfileConfig struct {
	Secret string
	TTL    time.Duration
}

// Claims is the decoded payload of a verified token.  It is produced only by
// TokenCodec.Verify.
type Claims struct {
	SubjectID uint64
	Role      model.Role
	ID        string // jti, unique per issued token
	IssuedAt  time.Time
	ExpiresAt time.Time
	Profile   Profile
}

// Remaining returns how long the token stays valid after now.
func (c Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// IssuedToken is a signed token string with its expiry.
type IssuedToken struct {
	Token string
	Exp   time.Time
}

// tokenClaims is the wire form: sub carries the account id as a decimal
// string, typ pins the profile so a token can never cross profiles even if
// secrets were reused.
type tokenClaims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 JWTs for both profiles.
type TokenCodec struct {
	issuer   string
	profiles map[Profile]ProfileConfig
	now      func() time.Time
}

// NewTokenCodec validates both profiles and returns a codec.
func NewTokenCodec(issuer string, access, refresh ProfileConfig) (*TokenCodec, error) {
	for name, p := range map[Profile]ProfileConfig{ProfileAccess: access, ProfileRefresh: refresh} {
		if p.Secret == "" {
			return nil, fmt.Errorf("%s profile requires a secret", name)
		}
		if p.TTL <= 0 {
			return nil, fmt.Errorf("%s profile requires a positive TTL", name)
		}
	}
	if access.Secret == refresh.Secret {
		return nil, errors.New("access and refresh profiles must use different secrets")
	}
	return &TokenCodec{
		issuer:   issuer,
		profiles: map[Profile]ProfileConfig{ProfileAccess: access, ProfileRefresh: refresh},
		now:      time.Now,
	}, nil
}

// TTL returns the configured lifetime of profile p.
func (c *TokenCodec) TTL(p Profile) time.Duration {
	return c.profiles[p].TTL
}

// Issue builds and signs a token for subjectID under profile p.
func (c *TokenCodec) Issue(p Profile, subjectID uint64, role model.Role) (IssuedToken, error) {
	cfg, ok := c.profiles[p]
	if !ok {
		return IssuedToken{}, fmt.Errorf("unknown token profile %q", p)
	}
	now := c.now().UTC()
	exp := now.Add(cfg.TTL)
	claims := tokenClaims{
		Role: string(role),
		Type: string(p),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(subjectID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign %s token: %w", p, err)
	}
	return IssuedToken{Token: signed, Exp: exp}, nil
}

// IssuePair mints a fresh access/refresh pair.
func (c *TokenCodec) IssuePair(subjectID uint64, role model.Role) (model.TokenPair, error) {
	access, err := c.Issue(ProfileAccess, subjectID, role)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := c.Issue(ProfileRefresh, subjectID, role)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

// Verify checks signature, expiry and claim shape of raw under profile p.
// The returned error wraps exactly one of ErrSignatureInvalid,
// ErrTokenExpired or ErrMalformedClaims.
func (c *TokenCodec) Verify(p Profile, raw string) (Claims, error) {
	cfg, ok := c.profiles[p]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown profile %q", ErrMalformedClaims, p)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	var tc tokenClaims
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, &tc, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}
	if !tok.Valid || tc.Type != string(p) {
		return Claims{}, fmt.Errorf("%w: unexpected token type", ErrMalformedClaims)
	}
	sub, err := strconv.ParseUint(tc.Subject, 10, 64)
	if err != nil || sub == 0 {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrMalformedClaims)
	}
	role, ok := model.ParseRole(tc.Role)
	if !ok {
		return Claims{}, fmt.Errorf("%w: bad role", ErrMalformedClaims)
	}
	return Claims{
		SubjectID: sub,
		Role:      role,
		ID:        tc.ID,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
		Profile:   p,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}
}
