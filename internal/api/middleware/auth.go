package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/auth"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

const (
	// ContextKeyActor holds the models.Actor of the request.
	ContextKeyActor = "actor"
	// ContextKeyClaims holds the validated *auth.Claims.
	ContextKeyClaims = "claims"
)

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(jwtSecret string, tokens cache.ITokenStore) gin.HandlerFunc {
	return authenticate(jwtSecret, tokens, true)
}

// OptionalAuthMiddleware identifies the caller when a token is sent and lets anonymous
// requests through. A token that is sent but invalid is still rejected.
func OptionalAuthMiddleware(jwtSecret string, tokens cache.ITokenStore) gin.HandlerFunc {
	return authenticate(jwtSecret, tokens, false)
}

func authenticate(jwtSecret string, tokens cache.ITokenStore, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
			c.Set(ContextKeyActor, models.Anonymous)
			c.Next()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if tokens != nil && claims.ID != "" {
			revoked, err := tokens.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Printf("ERROR: token revocation check failed: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Unable to verify token"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
				return
			}
		}
		actor, err := claims.Actor()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyActor, actor)
		c.Next()
	}
}

// GetActor returns the caller, or models.Anonymous when no middleware identified one.
func GetActor(c *gin.Context) models.Actor {
	if v, ok := c.Get(ContextKeyActor); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Anonymous
}

// GetClaims returns the validated token claims, if any.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
