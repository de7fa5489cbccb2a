package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// StructuredLogger logs one structured entry per request via the HTTP
// component logger: request id, method, path, status and duration.
// Health checks are skipped to keep the log from drowning in noise.
func StructuredLogger() gin.HandlerFunc {
	skip := map[string]bool{
		"/health": true,
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		event := logger.HTTP().Info()
		if status >= 500 {
			event = logger.HTTP().Error()
		} else if status >= 400 {
			event = logger.HTTP().Warn()
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
