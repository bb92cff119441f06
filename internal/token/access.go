package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Access represents a signed JWT access token along with its identity
// and expiry. ID carries the jti claim and is the handle used for
// individual revocation.
type Access struct {
	Token string    // the serialized JWT string
	ID    string    // jti claim, used to revoke this token
	Exp   time.Time // UTC expiration time
}

// Issuer mints and revokes short-lived access tokens for a user.
// Revocation is by token identifier (jti), not by user, so logging out
// one device leaves other sessions intact.
type Issuer interface {
	Issue(userID uint64, role string) (Access, error)
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTIssuer signs HS256 access tokens and tracks revoked token IDs in
// Redis. Denylist entries expire together with the token they block, so
// the set never outgrows the set of live tokens. A nil Redis client
// disables revocation checks (tokens then simply age out).
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewJWTIssuer builds an issuer with the given signing secret and
// access-token TTL.
func NewJWTIssuer(secret string, ttl time.Duration, rdb *redis.Client) *JWTIssuer {
	return &JWTIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		rdb:    rdb,
		prefix: "denylist:",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue builds and signs an HS256 JWT for a user. The claims carry the
// subject (sub), role, token id (jti), expiration (exp) and issued-at
// (iat).
func (i *JWTIssuer) Issue(userID uint64, role string) (Access, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"jti":  jti,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return Access{}, err
	}
	return Access{Token: signed, ID: jti, Exp: exp}, nil
}

// Revoke denylists a token ID until the token's own expiry. Revoking an
// already-revoked or unknown ID is a no-op.
func (i *JWTIssuer) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if i.rdb == nil || tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(i.now())
	if ttl <= 0 {
		return nil // already expired, nothing to block
	}
	return i.rdb.Set(ctx, i.prefix+tokenID, "1", ttl).Err()
}

// Revoked reports whether a token ID has been denylisted.
func (i *JWTIssuer) Revoked(ctx context.Context, tokenID string) (bool, error) {
	if i.rdb == nil || tokenID == "" {
		return false, nil
	}
	n, err := i.rdb.Exists(ctx, i.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
