package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// AccessLog emits one structured log line per request with the request ID,
// so a browser-reported failure can be correlated across the gateway and
// the launcher.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.HTTP().Info()
		if c.Writer.Status() >= 500 {
			event = logger.HTTP().Error()
		}
		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// CORS allows the launcher web app to call both services with credentials,
// mirroring the browser-facing deployment behind the shared ingress.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
