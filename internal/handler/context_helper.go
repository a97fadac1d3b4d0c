package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/internal/middleware"
	"github.com/edutech/college-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// principalFromContext converts verified claims into the explicit principal
// that services consume.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Principal{}, false
	}
	return models.Principal{
		UserID: claims.UserID,
		Role:   claims.Role,
		Email:  claims.Email,
		Name:   claims.Name,
	}, true
}
