package httpmiddleware

import (
	"net/http"
	"time"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"
	"RoboSupport/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit applies a shared limiter to every request of the route group.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}

// RateLimitByKey limits each caller separately. keyFn extracts the caller
// key, usually the authenticated user ID; an empty key falls back to the client IP.
func RateLimitByKey(limiter ratelimiter.KeyedRateLimiter, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.AllowKey(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}

// RequestLogger writes one structured log line per request.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		userID := c.GetString("userID")
		log := logger.New(serviceName, c.GetHeader("X-Request-ID"), userID).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       c.FullPath(),
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			}).
			WithPayload(map[string]interface{}{
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request failed")
		case status >= http.StatusBadRequest:
			log.Warn("request rejected")
		default:
			log.Debug("request served")
		}
	}
}
