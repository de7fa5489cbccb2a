// Package middleware provides the HTTP middleware chain shared by every
// route: request correlation, structured access logging, method and size
// restriction, rate limiting and response/request compression.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name used for request correlation.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the Gin context key the request id is stored under.
	RequestIDKey = "request_id"
)

// RequestID generates or extracts a correlation id for each request and
// echoes it back on the response so a client can reference it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID retrieves the request id set by RequestID.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(RequestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
