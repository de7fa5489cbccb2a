package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowedHTTPMethods restricts requests to the methods this API actually
// uses, rejecting anything else (TRACE, CONNECT, and the like) before it
// reaches routing.
func AllowedHTTPMethods() gin.HandlerFunc {
	allowed := map[string]bool{
		http.MethodGet:     true,
		http.MethodPost:    true,
		http.MethodPut:     true,
		http.MethodDelete:  true,
		http.MethodOptions: true,
		http.MethodHead:    true,
	}

	return func(c *gin.Context) {
		if !allowed[c.Request.Method] {
			c.Header("Allow", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
				"error":   "method_not_allowed",
				"message": "the HTTP method " + c.Request.Method + " is not allowed",
			})
			return
		}
		c.Next()
	}
}
