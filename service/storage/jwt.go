package storage

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/xexgm/chatlink/tools/errs"
)

// TokenClaims is what the client reads out of a persisted token before
// deciding to attempt session restoration. Signature verification stays
// server side; the client only needs the uid and the expiry.
type TokenClaims struct {
	UID       int64
	ExpiresAt time.Time
}

// Expired reports whether the token is already past its expiry at now.
// Tokens without an expiry never expire client side.
func (c *TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type wireClaims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Inspect parses a token without verifying its signature and returns the
// claims the client cares about. A token that does not parse at all is
// rejected as ErrAuth so stale garbage in the store forces a fresh login.
func Inspect(token string) (*TokenClaims, error) {
	var claims wireClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errs.ErrAuth.WithDetailf("parse token: %v", err)
	}
	if claims.UID <= 0 {
		return nil, errors.New("token carries no uid claim")
	}
	out := &TokenClaims{UID: claims.UID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
