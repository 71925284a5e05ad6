// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one bucket
// per identity. Buckets live in a go-cache TTL cache: each hit refreshes the
// entry and idle buckets are evicted by the cache janitor.
//
// The limiter is process-local and meant for abuse and cost control in front
// of the AI and OCR collaborators. It is not an authorization mechanism.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultVisitorTTL     = 10 * time.Minute
	defaultVisitorCleanup = time.Minute
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by authenticated user ("user:<id>") and falls
// back to the client IP ("ip:<addr>").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid, ok := UserID(c); ok {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter enforces per-key token-bucket limits. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	ttl      time.Duration
	visitors *cache.Cache
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		ttl:      defaultVisitorTTL,
		visitors: cache.New(defaultVisitorTTL, defaultVisitorCleanup),
	}
}

// getVisitor returns the limiter for key, creating it on first use. Every
// lookup pushes the entry's expiry out by the TTL.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	if v, ok := rl.visitors.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.visitors.Set(key, lim, rl.ttl)
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.visitors.Add(key, lim, rl.ttl); err != nil {
		// Lost the race to another request; use the winner's bucket.
		if v, ok := rl.visitors.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. Denied requests get 429 with
// Retry-After and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       CodeRateLimited,
			"message":    "rate limit exceeded",
		})
	}
}
