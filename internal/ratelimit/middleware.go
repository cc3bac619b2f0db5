// middleware.go: Admission gate middleware for the HTTP boundary
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GateOptions tunes the admission gate middleware.
type GateOptions struct {
	// ExemptPaths bypass the limiter entirely (health checks, docs).
	ExemptPaths []string
	// AllowPrivateIPs bypasses the limiter for private and loopback clients.
	AllowPrivateIPs bool
}

// Middleware returns the admission gate: it runs before the handler, derives
// the rate-limit key from the request, and either forwards or rejects with
// 429. Rate-limit headers are set on every non-exempt response.
func (l *Limiter) Middleware(opts GateOptions) gin.HandlerFunc {
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		client := ClientKey(c.Request)
		if opts.AllowPrivateIPs && IsPrivateIP(client) {
			c.Next()
			return
		}

		dec := l.Check(c.Request.Context(), client, c.Request.URL.Path)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", dec.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))

		if !dec.Allowed {
			retrySecs := int(math.Ceil(dec.RetryAfter.Seconds()))
			if retrySecs < 1 {
				retrySecs = 1
			}
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(dec.RetryAfter).Unix()))
			c.Header("Retry-After", fmt.Sprintf("%d", retrySecs))

			l.logger.Warn("request rejected by admission gate",
				zap.String("client", client),
				zap.String("category", dec.Category),
				zap.String("path", c.Request.URL.Path),
				zap.Duration("retry_after", dec.RetryAfter))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "RATE_LIMIT_EXCEEDED",
				"message":     "too many requests",
				"category":    dec.Category,
				"retry_after": retrySecs,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
