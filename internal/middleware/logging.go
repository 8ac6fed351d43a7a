// Package middleware holds the gin middleware shared by the kiosk HTTP routes.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/omnikiosk/pkg/logger"
)

// Logging logs one line per handled request.
func Logging(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}

		log.LogAttrs(c.Request.Context(), level, "handled http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("correlation_id", logger.CorrelationIDFromContext(c.Request.Context())),
		)
	}
}
