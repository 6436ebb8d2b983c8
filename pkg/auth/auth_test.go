package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opencode-manager/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth(enabled bool) *Auth {
	return New(&config.AuthConfig{
		Enabled:   enabled,
		Username:  "admin",
		Password:  "admin123",
		JWTSecret: "test-secret",
	})
}

func TestValidateCredentials(t *testing.T) {
	a := testAuth(true)

	assert.NoError(t, a.ValidateCredentials("admin", "admin123"))
	assert.ErrorIs(t, a.ValidateCredentials("admin", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.ValidateCredentials("other", "admin123"), ErrInvalidCredentials)
}

func TestGenerateAndValidateToken(t *testing.T) {
	a := testAuth(true)

	token, err := a.GenerateToken("admin")
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Subject)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := testAuth(true).GenerateToken("admin")
	require.NoError(t, err)

	other := New(&config.AuthConfig{JWTSecret: "different-secret"})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	a := testAuth(true)

	claims := &Claims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Subject:   "admin",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func middlewareRequest(t *testing.T, a *Auth, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/api/pods", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	method := http.MethodGet
	if path == "/api/login" {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	w := middlewareRequest(t, testAuth(true), "/api/pods", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_AcceptsBearerHeader(t *testing.T) {
	a := testAuth(true)
	token, err := a.GenerateToken("admin")
	require.NoError(t, err)

	w := middlewareRequest(t, a, "/api/pods", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_AcceptsQueryToken(t *testing.T) {
	// WebSocket clients cannot set headers; the token rides the query
	a := testAuth(true)
	token, err := a.GenerateToken("admin")
	require.NoError(t, err)

	w := middlewareRequest(t, a, "/api/pods?token="+token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_RejectsBadToken(t *testing.T) {
	w := middlewareRequest(t, testAuth(true), "/api/pods", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer not-a-token")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_SkipsLoginRoute(t *testing.T) {
	w := middlewareRequest(t, testAuth(true), "/api/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	w := middlewareRequest(t, testAuth(false), "/api/pods", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
