package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the key used to store token claims in the Gin context.
	ContextKeyClaims = "claims"
)

// RequireAuth is a middleware that requires a valid bearer token.
// It aborts with 401 if the token is missing, forged or expired.
func RequireAuth(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var claims *Claims
			claims, err = tm.Verify(token)
			if err == nil {
				c.Set(ContextKeyClaims, claims)
				c.Next()
				return
			}
		}

		c.Header("WWW-Authenticate", `Bearer realm="selfie"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

// GetCurrentUser retrieves the authenticated claims from the Gin context.
func GetCurrentUser(c *gin.Context) *Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}

	data, ok := claims.(*Claims)
	if !ok {
		return nil
	}

	return data
}

// SetCurrentUser stores claims in the Gin context.
func SetCurrentUser(c *gin.Context, claims *Claims) {
	c.Set(ContextKeyClaims, claims)
}
