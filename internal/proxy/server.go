package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Server is the authenticated reverse-proxy front door: it verifies a bearer
// JWT, rate-limits the resolved tenant, then forwards the request (body and
// headers, plus an X-Tenant-Id header when auth is enabled) to whichever
// upstream its path prefix maps to.
type Server struct {
	cfg     Config
	auth    *Authenticator
	limiter *TenantLimiter
	logger  *slog.Logger
	http    *http.Server
}

// NewServer builds the proxy's router and wraps it in an *http.Server.
func NewServer(cfg Config, auth *Authenticator, limiter *TenantLimiter, logger *slog.Logger) *Server {
	logger = logger.With("component", "proxy")
	s := &Server{cfg: cfg, auth: auth, limiter: limiter, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	routes := cfg.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	for _, route := range routes {
		handler := http.StripPrefix(strings.TrimSuffix(route.Prefix, "/"), s.proxyHandler(route.Upstream))
		router.PathPrefix(route.Prefix).Handler(s.withAuth(handler))
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// withAuth verifies the bearer token and rate-limits the resolved tenant
// before handing off to next. Skipped entirely when auth is disabled, since
// some deployments run the proxy purely as a path-rewriting front door.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AuthEnabled {
			next.ServeHTTP(w, r)
			return
		}

		token, err := ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
			return
		}

		tenant, err := s.auth.Authenticate(token)
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			writeAuthError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}

		if !s.limiter.Allow(tenant.ID, tenant.Tier) {
			writeAuthError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		r.Header.Set("X-Tenant-Id", tenant.ID)
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="polymarket-mm-proxy"`)
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, code, message)
}

// proxyHandler builds a reverse proxy rooted at upstreamBase. NewServer wraps
// it in http.StripPrefix, so the inbound path prefix is already gone and
// Director only needs to rewrite scheme/host.
func (s *Server) proxyHandler(upstreamBase string) http.Handler {
	target, err := url.Parse(upstreamBase)
	if err != nil {
		panic(fmt.Sprintf("proxy: invalid upstream %q: %v", upstreamBase, err))
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
		req.Header.Del("Host")
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("upstream request failed", "upstream", upstreamBase, "error", err)
		writeAuthError(w, http.StatusBadGateway, "upstream_error", "upstream request failed")
	}
	rp.ModifyResponse = func(resp *http.Response) error {
		for _, h := range hopByHopHeaders {
			resp.Header.Del(h)
		}
		return nil
	}
	return rp
}

var hopByHopHeaders = []string{
	"Connection", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Keep-Alive",
}

// Start blocks serving until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("proxy starting", "addr", s.cfg.ListenAddr, "auth_enabled", s.cfg.AuthEnabled)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxy server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
