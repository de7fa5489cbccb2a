package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxIngestBodySize is the maximum accepted size for a log ingest body
// after any gzip decompression.
const MaxIngestBodySize int64 = 10 * 1024 * 1024

// RequestSizeLimiter rejects requests whose declared Content-Length
// exceeds maxSize, and clamps the body reader for cases where the header
// understates the true size.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "payload_too_large",
				"message":   "request body exceeds the maximum allowed size",
				"max_bytes": maxSize,
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
