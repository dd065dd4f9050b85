// internal/middleware/logging_middleware.go
package middleware

import (
	"eload-service/internal/utils"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs one line per API request
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)

		logger.LogAPIRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.GetString("request_id"),
			c.Writer.Status(),
			duration,
		)
	}
}
