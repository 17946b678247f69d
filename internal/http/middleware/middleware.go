package middleware

import (
	"time"

	"procurement_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RequestTimer logs each request with its duration and response status.
func RequestTimer(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := float64(time.Since(start).Microseconds()) / 1000
		log.HTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency, c.ClientIP())
	}
}
