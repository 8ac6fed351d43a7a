package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/ratelimit"
)

// RateLimitMiddleware enforces the per-client limit on relay routes.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	handler *errors.Handler
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, handler *errors.Handler, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		handler: handler,
		log:     log,
		now:     time.Now,
	}
}

// Handle returns a gin handler keyed by client IP. Limiter failures let the request through.
func (m *RateLimitMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.limiter == nil || !m.rules.Enabled() {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if m.rules.IsWhitelisted(ip) {
			c.Next()
			return
		}

		limit, window := m.rules.PerClient()
		result, err := m.limiter.Check(c.Request.Context(), ip, limit, window)
		if err != nil {
			m.log.Warn("rate limiter error", slog.String("client_ip", ip), slog.Any("error", err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			retryAfter := result.RetryAfter(m.now())
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			status, body := m.handler.Handle(c.Request.Context(), errors.NewRateLimitError(retryAfter))
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Next()
	}
}
