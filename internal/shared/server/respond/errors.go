package respond

import (
	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/telemetry"
)

// ErrorResponse is the BridgeIQ error envelope.
type ErrorResponse struct {
	Status  string      `json:"status"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	write(c, status, ErrorResponse{Status: "error", Code: code, Message: message, Details: details})
}

// FieldError sends a validation error naming the offending field.
func FieldError(c *gin.Context, status int, field, message string) {
	write(c, status, ErrorResponse{Status: "error", Code: "validation_error", Message: message, Field: field})
}

func write(c *gin.Context, status int, body ErrorResponse) {
	fields := map[string]any{
		"status":     status,
		"code":       body.Code,
		"message":    body.Message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if device := c.GetString("devicePath"); device != "" {
		fields["device"] = device
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, body)
}
