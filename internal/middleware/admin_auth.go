package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shimizudev/hentai-api/internal/model"
)

// AdminAuth returns a middleware that validates admin API key
// If apiKey is empty, authentication is disabled
func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		// "Bearer <key>", "ApiKey <key>" or ?admin_key= for quick manual checks
		auth := c.GetHeader("Authorization")
		if auth == "" {
			auth = c.Query("admin_key")
			if auth == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
					Code:  http.StatusUnauthorized,
					Error: "Unauthorized: missing admin key",
				})
				return
			}
		} else {
			auth = strings.TrimPrefix(auth, "Bearer ")
			auth = strings.TrimPrefix(auth, "ApiKey ")
		}

		if subtle.ConstantTimeCompare([]byte(auth), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, model.APIResponse{
				Code:  http.StatusForbidden,
				Error: "Forbidden: invalid admin key",
			})
			return
		}

		c.Next()
	}
}
