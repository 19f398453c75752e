package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub, role string) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetString("userID"), "isAdmin": c.GetBool("isAdmin")})
	})
	r.GET("/admin", AuthMiddleware(testSecret), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	expired := validClaims("u1", "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{name: "Valid", header: bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1", ""))), want: http.StatusOK},
		{name: "Missing", header: nil, want: http.StatusUnauthorized},
		{name: "BadFormat", header: http.Header{"Authorization": []string{"Token abc"}}, want: http.StatusUnauthorized},
		{name: "WrongSecret", header: bearer(sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("u1", ""))), want: http.StatusUnauthorized},
		{name: "WrongAlgorithm", header: bearer(sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("u1", ""))), want: http.StatusUnauthorized},
		{name: "Expired", header: bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired)), want: http.StatusUnauthorized},
		{name: "NoSubject", header: bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("", ""))), want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, "/me", tt.header)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAuthMiddleware_UserIDClaimWins(t *testing.T) {
	claims := validClaims("someone@example.com", "")
	claims.UserID = "u42"
	w := do(newRouter(), "/me", bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"u42","isAdmin":false}`, w.Body.String())
}

func TestAuthMiddleware_WebsocketQueryToken(t *testing.T) {
	r := newRouter()
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1", ""))

	w := do(r, "/me?token="+token, http.Header{"Upgrade": []string{"websocket"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "/me?token="+token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query tokens are only accepted on upgrades")
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter()

	w := do(r, "/admin", bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1", "student"))))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, "/admin", bearer(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("root", RoleAdmin))))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
