package middleware

import (
	"strings"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/models"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const (
	userIDKey = "user_id"
	userKey   = "user"
)

// Protect authenticates the request and stores the caller in the gin context.
// Any guard failure aborts the chain.
func Protect(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := auth.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(userIDKey, identity.UserID)
		c.Set(userKey, identity.User)

		ctx := c.Request.Context()
		log := logger.FromContext(ctx).With("user_id", identity.UserID.String())
		c.Request = c.Request.WithContext(logger.WithContext(ctx, log))

		c.Next()
	}
}

// AllowedTo must run after Protect.
func AllowedTo(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.HasRole(roles...) {
			AbortWithError(c, apperror.Forbidden("You do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

// bearerToken accepts "Bearer <token>" as well as a bare token.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
