// Command proxy is the authenticated reverse-proxy boundary: bearer-JWT
// auth, per-tenant rate limiting, and path-prefix forwarding to Polymarket's
// CLOB/Gamma/chain upstreams.
package main

import (
	"log/slog"
	"os"

	"polymarket-mm/internal/proxy"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := proxy.ConfigFromEnv()
	jwks := proxy.NewJWKSCache(cfg)
	auth := proxy.NewAuthenticator(cfg, jwks)
	limiter := proxy.NewTenantLimiter()

	if cfg.AuthEnabled {
		logger.Info("authentication enabled, pre-fetching JWKS",
			"cognito_region", cfg.CognitoRegion, "cognito_pool_id", cfg.CognitoPoolID)
		if err := jwks.Prefetch(); err != nil {
			logger.Warn("jwks prefetch failed, will retry on first request", "error", err)
		}
	} else {
		logger.Warn("authentication disabled")
	}

	server := proxy.NewServer(cfg, auth, limiter, logger)
	if err := server.Start(); err != nil {
		logger.Error("proxy server exited with error", "error", err)
		os.Exit(1)
	}
}
