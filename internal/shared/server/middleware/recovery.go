package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/server/respond"
	"bridgeiq-client/internal/shared/telemetry"
)

// Recovery answers a panicking handler with a 500 error envelope and logs
// the stack with the device and analysis it was serving.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			telemetry.Error("http.panic", map[string]any{
				"request_id":          RequestIDFromContext(c),
				"device":              DevicePathFromContext(c),
				"analysis_request_id": c.GetString("analysisRequestId"),
				"route":               c.FullPath(),
				"method":              c.Request.Method,
				"panic":               fmt.Sprint(rec),
				"stack":               string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
