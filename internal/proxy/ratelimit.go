package proxy

import (
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter hands out a per-tenant token-bucket limiter, sized by tier,
// created lazily on first use and reused for the life of the process.
type TenantLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTenantLimiter returns an empty per-tenant limiter set.
func NewTenantLimiter() *TenantLimiter {
	return &TenantLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *TenantLimiter) getOrCreate(tenantID string, tier TenantTier) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[tenantID]; ok {
		return lim
	}
	rps := rate.Limit(float64(tier.RequestsPerMinute()) / 60.0)
	lim := rate.NewLimiter(rps, tier.BurstSize())
	l.limiters[tenantID] = lim
	return lim
}

// Allow reports whether tenantID may make one more request right now,
// creating (and sizing) its limiter on first use.
func (l *TenantLimiter) Allow(tenantID string, tier TenantTier) bool {
	return l.getOrCreate(tenantID, tier).Allow()
}

// TenantCount reports how many distinct tenants currently have a limiter,
// exposed for monitoring.
func (l *TenantLimiter) TenantCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
