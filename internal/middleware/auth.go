package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tgo/docqa/internal/pkg/jwt"
	"github.com/tgo/docqa/internal/pkg/response"
)

const ContextKeyOwnerID = "owner_id"

type AuthMiddleware struct {
	jwtManager *jwt.Manager
}

func NewAuthMiddleware(jwtManager *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// JWTAuth validates the bearer token and makes its user the owner of
// everything the request touches.
func (m *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "INVALID_AUTHORIZATION", "Authorization header must be Bearer token")
			return
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ContextKeyOwnerID, claims.UserID)
		c.Next()
	}
}

// GetOwnerID returns the authenticated user, or uuid.Nil outside JWTAuth.
func GetOwnerID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextKeyOwnerID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
