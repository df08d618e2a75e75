package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Success writes the BridgeIQ success envelope {"status":"success","data":...}.
func Success(c *gin.Context, status int, data interface{}) {
	JSON(c, status, gin.H{"status": "success", "data": data})
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	Success(c, http.StatusOK, data)
}
