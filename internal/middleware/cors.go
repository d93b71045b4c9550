package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS is deliberately permissive: the metered endpoint is public and
// browser-facing, and identity comes from the request body rather than from
// anything origin-scoped.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
