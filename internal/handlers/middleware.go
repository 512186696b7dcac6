package handlers

import (
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
)

// ContextUserKey holds the authenticated user name used as performedBy on
// every mutation.
const ContextUserKey = "user_name"

// AuthMiddleware validates the Bearer token against Casdoor and stores the
// actor identity in the request context. When required is false anonymous
// requests pass through, which keeps read endpoints open.
func AuthMiddleware(client *casdoorsdk.Client, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
					Message: "Authorization header required",
				})
				return
			}
			c.Next()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := client.ParseJwtToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid token",
				Details: err.Error(),
			})
			return
		}

		c.Set(ContextUserKey, claims.Name)
		c.Next()
	}
}

// RequestIDMiddleware echoes the inbound request id so log lines can be
// correlated across services.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
			c.Writer.Header().Set("X-Request-ID", requestID)
		}
		c.Next()
	}
}
