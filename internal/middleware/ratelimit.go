package middleware

import (
	"context"
	"sync"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than the cleanup interval are dropped.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

func NewIPRateLimiter(cfg config.RateLimitConfig) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:    cfg.BurstSize,
		idle:     cfg.CleanupInterval,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (l *IPRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, ip)
		}
	}
}

// Run evicts idle buckets until ctx is cancelled.
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.cleanup(now)
		}
	}
}

func (l *IPRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			AbortWithError(c, apperror.TooManyRequests("Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}
