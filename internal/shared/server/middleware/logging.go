package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		device, _ := c.Get(devicePathKey)
		requestID, _ := c.Get("analysisRequestId")
		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":          RequestIDFromContext(c),
			"method":              c.Request.Method,
			"path":                c.Request.URL.Path,
			"status":              c.Writer.Status(),
			"status_transition":   statusTransition,
			"duration_ms":         float64(latency.Microseconds()) / 1000.0,
			"device":              device,
			"analysis_request_id": requestID,
			"client_ip":           c.ClientIP(),
			"user_agent":          c.Request.UserAgent(),
		})
	}
}
