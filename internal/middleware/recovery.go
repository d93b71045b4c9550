package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/screenlens/demo-gateway/internal/service"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				log.Printf("[%s] PANIC: %v", requestID, err)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
					"code":  service.CodeInternalError,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
