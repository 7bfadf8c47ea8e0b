package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking/internal/logger"
)

// AccessLog writes one structured line per request.
func AccessLog(logg *logger.Logger) gin.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		ctx := logg.WithFields(c.Request.Context(), map[string]any{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":  c.ClientIP(),
		})

		if status >= http.StatusInternalServerError {
			logg.Warn(ctx, "http request failed")
			return
		}
		logg.Info(ctx, "http request")
	}
}
