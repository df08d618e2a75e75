package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/server/respond"
)

const (
	devicePathKey = "devicePath"

	headerClientID     = "client-id"
	headerClientSecret = "client-secret"
)

// Credentials maps a client id to its secret.
type Credentials map[string]string

// DeviceAuth checks the client-id/client-secret headers and stores the
// device path from the route in the context.
func DeviceAuth(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader(headerClientID))
		secret := c.GetHeader(headerClientSecret)
		if clientID == "" || secret == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing client credentials", nil)
			return
		}
		want, ok := creds[clientID]
		if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(secret)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Invalid client credentials", nil)
			return
		}

		c.Set(devicePathKey, c.Param("device"))
		c.Next()
	}
}

// DevicePathFromContext fetches the device path set by DeviceAuth.
func DevicePathFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(devicePathKey)
	if device, ok := val.(string); ok {
		return device
	}
	return ""
}
