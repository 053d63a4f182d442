package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter applies a token-bucket rate limit per tenant. Limiters are
// created lazily and never evicted; tenant cardinality is small.
type TenantLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewTenantLimiter(perSecond float64, burst int) *TenantLimiter {
	return &TenantLimiter{
		limiters: map[string]*rate.Limiter{},
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (t *TenantLimiter) limiter(tenant string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[tenant]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[tenant] = l
	}
	return l
}

// Middleware rejects requests over the tenant's budget with 429.
func (t *TenantLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-Id")
		if tenant == "" {
			tenant = "t_demo"
		}
		if !t.limiter(tenant).Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
