package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pocusai/internal/models"
)

const identityContextKey = "auth_identity"

// Middleware requires a signed-in identity and stores it in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.CurrentIdentity(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("auth: resolve identity")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Set(identityContextKey, user)
		c.Next()
	}
}

// AdminMiddleware must run after Middleware; it rejects non-administrators.
func (s *Service) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := IdentityFromContext(c)
		ok, err := s.IsAdministrator(c.Request.Context(), user)
		if err != nil {
			log.WithError(err).Error("auth: check administrator")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrator access required"})
			return
		}
		c.Next()
	}
}

// IdentityFromContext retrieves the user stored by Middleware.
func IdentityFromContext(c *gin.Context) (*models.User, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}
