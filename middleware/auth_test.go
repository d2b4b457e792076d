package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"OmniChat/pkg/config"
	tokenstore "OmniChat/pkg/token"
)

func mintToken(t *testing.T, sub, jti string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"jti": jti,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func guardedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentUserID(c)})
	})
	return r
}

func TestAuthMiddlewareRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := guardedRouter()

	for _, hdr := range []string{"", "Basic abc", "Bearer", "Bearer bad.token.here"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d; want 401", hdr, w.Code)
		}
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	r := guardedRouter()
	tok := mintToken(t, "user-42", uuid.NewString())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	r := guardedRouter()
	jti := uuid.NewString()
	tok := mintToken(t, "user-42", jti)
	tokenstore.RevokeToken(context.Background(), jti, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401 after revocation", w.Code)
	}
}
