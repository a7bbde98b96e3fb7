package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-portal-client/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrNotJWT is returned for tokens that cannot be parsed as a JWT. Opaque
// tokens are legal; callers fall back to server-provided expiries.
var ErrNotJWT = errors.New("token is not a JWT")

// TokenClaims is what the client can learn from an access token without the
// signing key. Nothing here is verified: it is for display and expiry
// scheduling only, authorization stays with the backend.
type TokenClaims struct {
	Sub   string    // Users unique ID
	Roles []string  // Roles assigned to the user
	Iat   time.Time // Issued at time
	Exp   time.Time // Expiration, zero when absent
}

// Expired reports whether the claims carry an exp that has passed.
func (c *TokenClaims) Expired() bool {
	return !c.Exp.IsZero() && !NowTimeFunc().Before(c.Exp)
}

// Inspect parses rawToken without verifying its signature.
func Inspect(rawToken string) (*TokenClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrNotJWT
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}

	tc := &TokenClaims{}
	tc.Sub, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.Exp = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.Iat = iat.Time
	}
	switch roles := claims["roles"].(type) {
	case []any:
		tc.Roles = utils.ToStringSlice(roles)
	case string:
		tc.Roles = []string{roles}
	}
	return tc, nil
}

// Expiry returns the exp claim of rawToken, if it is a JWT that has one.
func Expiry(rawToken string) (time.Time, bool) {
	claims, err := Inspect(rawToken)
	if err != nil || claims.Exp.IsZero() {
		return time.Time{}, false
	}
	return claims.Exp, true
}
