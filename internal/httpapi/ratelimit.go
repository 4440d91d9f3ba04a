package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorTTL      = 3 * time.Minute
	visitorSweepGap = time.Minute
)

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per key with the given burst; keys idle for ttl are dropped.
func NewRateLimiter(rps float64, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes one token from the bucket of key.
func (limiter *RateLimiter) Allow(key string) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.now()
	if now.Sub(limiter.lastSweep) > visitorSweepGap {
		for visitorKey, entry := range limiter.visitors {
			if now.Sub(entry.lastSeen) > limiter.ttl {
				delete(limiter.visitors, visitorKey)
			}
		}
		limiter.lastSweep = now
	}

	entry, exists := limiter.visitors[key]
	if !exists {
		entry = &visitor{limiter: rate.NewLimiter(limiter.rate, limiter.burst)}
		limiter.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// rateLimitMiddleware limits per authenticated user, falling back to the client IP.
func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor, ok := actorFrom(c); ok {
			key = actor.UserID.String()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse("rate_limited", "rate limit exceeded"))
			return
		}
		c.Next()
	}
}
