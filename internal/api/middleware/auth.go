// server/internal/api/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"safezone-api-server/internal/auth"
	"safezone-api-server/pkg/e"
)

// Authenticate validates the bearer JWT and puts the caller into both the gin
// context and the request context, where the service layer reads it.
func Authenticate(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		caller := auth.Caller{Email: claims.Email, Role: claims.Role}
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Request = c.Request.WithContext(auth.WithCaller(c.Request.Context(), caller))

		c.Next()
	}
}

// Authorize rejects the request before the handler runs when the caller may
// not perform op. The service checks again; this only avoids reading large
// bodies (photo uploads) for callers that would be refused anyway.
func Authorize(authz auth.Authorizer, op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authz.Authorize(c.Request.Context(), op); err != nil {
			if errors.Is(err, e.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication is required"})
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
			return
		}
		c.Next()
	}
}
