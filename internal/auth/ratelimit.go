// internal/auth/ratelimit.go
package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per tenant
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	perMin  int
	clients map[string]*tenantLimiter
	mutex   sync.Mutex
	now     func() time.Time
}

// NewRateLimiter allows perMinute questions per tenant with the given burst.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		perMin:  perMinute,
		clients: make(map[string]*tenantLimiter),
		now:     time.Now,
	}
}

// PerMinute returns the configured limit
func (rl *RateLimiter) PerMinute() int {
	return rl.perMin
}

// Allow reports whether the tenant may ask another question now
func (rl *RateLimiter) Allow(tenantID string) bool {
	if rl.perMin <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	client, exists := rl.clients[tenantID]
	if !exists {
		client = &tenantLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[tenantID] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// Cleanup drops tenants idle for longer than idle and returns how many were removed
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for tenantID, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, tenantID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked tenants
func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.clients)
}
