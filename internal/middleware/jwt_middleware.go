package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/schemagate/internal/utils"
)

// JWTMiddleware guards the admin API with HS256 bearer tokens.
type JWTMiddleware struct {
	secret string
}

// NewJWTMiddleware constructs a JWTMiddleware validating against secret.
func NewJWTMiddleware(secret string) *JWTMiddleware {
	return &JWTMiddleware{secret: secret}
}

func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization header")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1], m.secret)
		if err != nil {
			utils.Error(c, http.StatusUnauthorized, utils.ErrInvalidToken.Error(), "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("admin_subject", claims.Subject)
		c.Set("email", claims.Email)
		c.Next()
	}
}
