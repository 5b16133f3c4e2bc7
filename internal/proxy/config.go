// Package proxy implements the authenticated reverse-proxy boundary in
// front of the upstream CLOB/Gamma/chain APIs: bearer-JWT verification,
// per-tenant rate limiting, and path-prefix forwarding.
package proxy

import "strings"

// TenantTier determines a tenant's rate-limit allowance.
type TenantTier int

const (
	TierFree TenantTier = iota
	TierPro
	TierEnterprise
)

// ParseTenantTier parses a tier name case-insensitively, defaulting to Free.
func ParseTenantTier(s string) TenantTier {
	switch strings.ToLower(s) {
	case "pro":
		return TierPro
	case "enterprise":
		return TierEnterprise
	default:
		return TierFree
	}
}

func (t TenantTier) String() string {
	switch t {
	case TierPro:
		return "pro"
	case TierEnterprise:
		return "enterprise"
	default:
		return "free"
	}
}

// RequestsPerMinute is the sustained token-bucket refill rate for the tier.
func (t TenantTier) RequestsPerMinute() int {
	switch t {
	case TierPro:
		return 300
	case TierEnterprise:
		return 1000
	default:
		return 60
	}
}

// BurstSize is the token-bucket capacity for the tier.
func (t TenantTier) BurstSize() int {
	switch t {
	case TierPro:
		return 50
	case TierEnterprise:
		return 100
	default:
		return 10
	}
}

// Route maps an inbound path prefix to an upstream base URL.
type Route struct {
	Prefix   string // e.g. "/clob/"
	Upstream string // e.g. "https://clob.polymarket.com"
}

// Config configures the proxy server.
type Config struct {
	ListenAddr string

	AuthEnabled       bool
	CognitoRegion     string
	CognitoPoolID     string
	CognitoClientID   string // optional, empty disables audience validation

	JWKSCachePath string // on-disk cache for JWKS between restarts
	JWKSCacheTTL  int    // seconds before a re-fetch is forced

	// JWKSURLOverride, when set, is used verbatim instead of deriving the
	// Cognito URL from CognitoRegion/CognitoPoolID. Tests point this at a
	// local httptest server.
	JWKSURLOverride string

	Routes []Route
}

// JWKSURL is the Cognito-hosted JWKS endpoint for the configured user pool.
func (c Config) JWKSURL() string {
	if c.JWKSURLOverride != "" {
		return c.JWKSURLOverride
	}
	return "https://cognito-idp." + c.CognitoRegion + ".amazonaws.com/" + c.CognitoPoolID + "/.well-known/jwks.json"
}

// ExpectedIssuer is the `iss` claim every verified token must carry.
func (c Config) ExpectedIssuer() string {
	return "https://cognito-idp." + c.CognitoRegion + ".amazonaws.com/" + c.CognitoPoolID
}

// DefaultRoutes mirrors the upstream hosts the exchange client itself talks
// to, so the proxy and the engine's direct REST client agree on topology.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/clob/", Upstream: "https://clob.polymarket.com"},
		{Prefix: "/gamma/", Upstream: "https://gamma-api.polymarket.com"},
		{Prefix: "/chain/", Upstream: "https://polygon-rpc.com"},
	}
}
