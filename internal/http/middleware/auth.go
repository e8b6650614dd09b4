// Package middleware holds the HTTP auth layers: bcrypt-checked admin token
// for operator endpoints, JWT service tokens for machine callers.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/khchop/kickscore/internal/platform/logger"
)

type AuthMiddleware struct {
	log            *logger.Logger
	adminTokenHash string
	jwtSecret      []byte
}

func NewAuthMiddleware(log *logger.Logger, adminTokenHash, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:            log.With("Middleware", "AuthMiddleware"),
		adminTokenHash: adminTokenHash,
		jwtSecret:      []byte(jwtSecret),
	}
}

// RequireAdmin authorizes operator endpoints against the configured bcrypt
// hash. With no hash configured the admin surface is disabled outright.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.adminTokenHash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin endpoints disabled"})
			return
		}
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(am.adminTokenHash), []byte(token)); err != nil {
			am.log.Warn("admin auth rejected", "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// RequireService authorizes machine callers with an HS256 service JWT.
func (am *AuthMiddleware) RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(am.jwtSecret) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "service endpoints disabled"})
			return
		}
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set("service", sub)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
