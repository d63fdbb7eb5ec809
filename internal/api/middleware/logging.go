package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-ops/relay/pkg/logger"
)

// LoggingMiddleware logs one line per HTTP request.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Infof("[%s] %s - %d (%v)", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
