package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"OmniChat/middleware"
	tokenstore "OmniChat/pkg/token"
)

// Logout revokes the current token's jti so the session guard refuses it from
// now on. Token issuance lives outside this service; revocation stays here
// because the guard consults the revocation list on every request.
func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		jtiRaw, _ := c.Get(middleware.ContextJTIKey)
		jti, _ := jtiRaw.(string)
		// covers the longest token lifetime issued upstream
		tokenstore.RevokeToken(c.Request.Context(), jti, 24*time.Hour)
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
