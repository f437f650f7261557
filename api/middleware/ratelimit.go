package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unhide/config"
	"github.com/use-agent/unhide/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

// callerLimiters holds one token bucket per caller.
type callerLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	seen    map[string]time.Time
}

func newCallerLimiters(cfg config.RateLimitConfig) *callerLimiters {
	return &callerLimiters{
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: make(map[string]*rate.Limiter),
		seen:    make(map[string]time.Time),
	}
}

func (l *callerLimiters) allow(caller string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[caller]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[caller] = b
	}
	l.seen[caller] = now
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

// forgetIdle drops callers not seen since cutoff.
func (l *callerLimiters) forgetIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for caller, last := range l.seen {
		if last.Before(cutoff) {
			delete(l.seen, caller)
			delete(l.buckets, caller)
		}
	}
}

// RateLimit throttles resolve traffic per caller. A caller is its API key
// when auth ran, its client IP otherwise. RequestsPerSecond <= 0 turns the
// limiter off.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newCallerLimiters(cfg)
	go func() {
		for now := range time.Tick(limiterSweepEvery) {
			limiters.forgetIdle(now.Add(-limiterIdleTTL))
		}
	}()

	return func(c *gin.Context) {
		caller := c.GetString(APIKeyContextKey)
		if caller == "" {
			caller = c.ClientIP()
		}

		if !limiters.allow(caller, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ResolveResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "too many resolve requests, retry later",
				},
			})
			return
		}
		c.Next()
	}
}
