package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// CORS builds a CORS middleware restricted to the given allow-list of
// origins. When the list is empty it falls back to localhost-only, since
// this is a server-to-server ingest API and should never default to
// accepting arbitrary browser origins.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		logger.HTTP().Warn().Msg("CORS_ALLOWED_ORIGINS not set, defaulting to localhost only")
		allowedOrigins = []string{"http://localhost:3000"}
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, Authorization, X-Batch-UUID, X-Source-Instance")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
