package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/zlog"
)

type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

// Middleware rejects requests over the limit with 429. Subjects are client IP + route.
// When the limiter itself fails the request is let through.
func Middleware(l Limiter, onReject func(route string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		subject := c.ClientIP() + ":" + route

		decision, err := l.Allow(c.Request.Context(), subject)
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("subject", subject).Msg("Rate limiter check failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		if onReject != nil {
			onReject(route)
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}
}
