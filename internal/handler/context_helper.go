package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/opstrail/changetrack/internal/middleware"
	"github.com/opstrail/changetrack/internal/models"
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

// actorName is the user name stamped on audit records for this request.
func actorName(claims *models.JWTClaims) string {
	if claims == nil {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
