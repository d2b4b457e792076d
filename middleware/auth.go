package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"OmniChat/pkg/config"
	tokenstore "OmniChat/pkg/token"
)

const (
	ContextUserIDKey = "current_user_id"
	ContextJTIKey    = "current_jti"
)

// AuthMiddleware is the session guard: it validates the bearer token and
// places the caller's user id into the request context, or rejects with 401.
// Session issuance lives outside this service.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}

		userID, jti, ok := ValidateToken(c, parts[1])
		if !ok {
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Set(ContextJTIKey, jti)
		c.Next()
	}
}

// ValidateToken parses and checks a JWT, including the revocation list. On
// failure it writes the 401 response itself and returns ok=false. Shared by
// the HTTP guard and the websocket handshake (which carries the token in the
// query string).
func ValidateToken(c *gin.Context, tokenStr string) (userID, jti string, ok bool) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
		return "", "", false
	}

	claims, okClaims := token.Claims.(jwt.MapClaims)
	if !okClaims {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token claims"})
		return "", "", false
	}

	jtiVal, _ := claims["jti"].(string)
	if tokenstore.IsRevoked(c.Request.Context(), jtiVal) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token has been revoked (logout)"})
		return "", "", false
	}

	var userIDStr string
	if sub, ok := claims["sub"].(string); ok {
		userIDStr = sub
	} else if subf, ok := claims["sub"].(float64); ok {
		// jwt lib may parse numeric as float64
		userIDStr = strconv.Itoa(int(subf))
	}
	if userIDStr == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid subject in token"})
		return "", "", false
	}
	return userIDStr, jtiVal, true
}

// CurrentUserID returns the authenticated user id set by AuthMiddleware.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextUserIDKey)
	s, _ := v.(string)
	return s
}
