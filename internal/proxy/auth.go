package proxy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"polymarket-mm/internal/errs"
)

// ErrMissingToken is returned when no (or an empty) Bearer token is present.
var ErrMissingToken = errors.New("proxy: missing bearer token")

// Claims are the subset of a Cognito access/id token's claims the proxy
// cares about: subject (tenant id), issuer, token_use, and an optional
// custom tenant-tier claim used to size the rate limiter.
type Claims struct {
	jwt.RegisteredClaims
	TokenUse   string `json:"token_use"`
	TenantTier string `json:"custom:tenant_tier"`
}

// Tenant is the authenticated identity extracted from a verified token.
type Tenant struct {
	ID   string
	Tier TenantTier
}

// Authenticator verifies bearer JWTs against a Cognito user pool's JWKS.
type Authenticator struct {
	cfg   Config
	jwks  *JWKSCache
}

// NewAuthenticator constructs an Authenticator backed by cache.
func NewAuthenticator(cfg Config, cache *JWKSCache) *Authenticator {
	return &Authenticator{cfg: cfg, jwks: cache}
}

// ExtractBearerToken pulls the token out of an Authorization header value,
// accepting both "Bearer " and "bearer " prefixes.
func ExtractBearerToken(header string) (string, error) {
	for _, prefix := range []string{"Bearer ", "bearer "} {
		if strings.HasPrefix(header, prefix) {
			token := strings.TrimPrefix(header, prefix)
			if token == "" {
				return "", ErrMissingToken
			}
			return token, nil
		}
	}
	return "", ErrMissingToken
}

// Authenticate verifies a bearer token's signature, issuer, audience (when
// configured), and token_use, returning the authenticated tenant.
func (a *Authenticator) Authenticate(tokenString string) (Tenant, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "RS256" {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid")
		}
		return a.jwks.Key(kid)
	},
		jwt.WithIssuer(a.cfg.ExpectedIssuer()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Tenant{}, errs.Auth("verify token", err)
	}
	if !token.Valid {
		return Tenant{}, errs.Auth("verify token", fmt.Errorf("token invalid"))
	}

	if a.cfg.CognitoClientID != "" {
		aud, err := claims.GetAudience()
		if err != nil || !containsAny(aud, a.cfg.CognitoClientID) {
			return Tenant{}, errs.Auth("verify token", fmt.Errorf("audience mismatch"))
		}
	}

	if claims.TokenUse != "access" && claims.TokenUse != "id" {
		return Tenant{}, errs.Auth("verify token", fmt.Errorf("unexpected token_use %q", claims.TokenUse))
	}

	return Tenant{
		ID:   claims.Subject,
		Tier: ParseTenantTier(claims.TenantTier),
	}, nil
}

func containsAny(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
