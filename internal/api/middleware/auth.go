package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agent-ops/relay/internal/crypto"
	"github.com/agent-ops/relay/pkg/types"
)

// AuthMiddleware validates the service JWT on the control surface.
func AuthMiddleware(jwtManager *crypto.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set("callerID", claims.Subject)
		c.Next()
	}
}

// GetCallerID extracts the authenticated caller from the Gin context.
func GetCallerID(c *gin.Context) (string, bool) {
	callerID, exists := c.Get("callerID")
	if !exists {
		return "", false
	}
	return callerID.(string), true
}
