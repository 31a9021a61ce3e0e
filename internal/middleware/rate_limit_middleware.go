// internal/middleware/rate_limit_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"isp-billing-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per client IP and route. Limiter failures let the request through.
func RateLimit(limiter Limiter, limit int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := c.FullPath() + ":" + c.ClientIP()
		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "too many attempts, try again later", nil)
			return
		}

		c.Next()
	}
}
