package proxy

import (
	"os"
	"strconv"
)

// ConfigFromEnv loads proxy configuration from environment variables,
// mirroring the upstream proxy's PMPROXY_* variable names.
func ConfigFromEnv() Config {
	return Config{
		ListenAddr:      envOr("PMPROXY_LISTEN_ADDR", ":8080"),
		AuthEnabled:     envBool("PMPROXY_AUTH_ENABLED", false),
		CognitoRegion:   envOr("PMPROXY_COGNITO_REGION", "us-east-1"),
		CognitoPoolID:   os.Getenv("PMPROXY_COGNITO_POOL_ID"),
		CognitoClientID: os.Getenv("PMPROXY_COGNITO_APP_CLIENT_ID"),
		JWKSCachePath:   envOr("PMPROXY_JWKS_CACHE_PATH", "data/jwks_cache.json"),
		JWKSCacheTTL:    envInt("PMPROXY_JWKS_CACHE_TTL_SECONDS", 3600),
		Routes:          DefaultRoutes(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
