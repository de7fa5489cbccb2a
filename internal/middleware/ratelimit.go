package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements per-IP token bucket rate limiting. There is no
// pre-authentication identity to key a second tier on, so every request
// is rate limited by client IP regardless of whether it later passes
// bearer auth.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	allowlist  map[string]bool
	mu         sync.RWMutex
	rate       rate.Limit
	burst      int
	maxEntries int
	cleanup    time.Duration
}

// NewRateLimiter builds a limiter allowing requestsPerSecond sustained
// throughput with the given burst, per client IP. Allowlisted IPs bypass
// the limiter entirely; maxEntries bounds how many per-IP buckets are
// kept before the cleanup pass resets them (<=0 uses the default).
func NewRateLimiter(requestsPerSecond float64, burst int, allowlist []string, maxEntries int) *RateLimiter {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	allowed := make(map[string]bool, len(allowlist))
	for _, ip := range allowlist {
		allowed[ip] = true
	}
	rl := &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		allowlist:  allowed,
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: maxEntries,
		cleanup:    5 * time.Minute,
	}
	go rl.cleanupRoutine()
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists = rl.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// cleanupRoutine bounds memory growth from IPs seen once and never again.
func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > rl.maxEntries {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware returns Gin middleware enforcing the per-IP limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.allowlist[ip] {
			c.Next()
			return
		}
		limiter := rl.getLimiter(ip)
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
