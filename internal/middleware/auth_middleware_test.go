package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tn-work/internal/middleware"
	"tn-work/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(testSecret), middleware.ExtractUserID(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString("user_id_validated"),
			"role":     c.GetString("role"),
			"ctx_role": contextutil.GetRole(c.Request.Context()),
		})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New().String()

	tests := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
		wantBody string
	}{
		{
			name:     "valid bearer token",
			header:   "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": userID, "role": "hr", "exp": time.Now().Add(time.Hour).Unix()}),
			wantCode: http.StatusOK,
			wantBody: `"ctx_role":"HR"`,
		},
		{
			name:     "token from cookie",
			cookie:   signToken(t, testSecret, jwt.MapClaims{"user_id": userID, "role": "EMPLOYEE"}),
			wantCode: http.StatusOK,
			wantBody: `"role":"EMPLOYEE"`,
		},
		{
			name:     "missing token",
			wantCode: http.StatusUnauthorized,
			wantBody: `"code":"UNAUTHORIZED"`,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": userID}),
			wantCode: http.StatusUnauthorized,
			wantBody: `"code":"INVALID_TOKEN"`,
		},
		{
			name:     "expired",
			header:   "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": userID, "exp": time.Now().Add(-time.Minute).Unix()}),
			wantCode: http.StatusUnauthorized,
			wantBody: `"code":"TOKEN_EXPIRED"`,
		},
		{
			name:     "user id is not a uuid",
			header:   "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "42"}),
			wantCode: http.StatusUnauthorized,
			wantBody: `"code":"INVALID_USER_ID"`,
		},
		{
			name:     "no user id claim",
			header:   "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "ADMIN"}),
			wantCode: http.StatusUnauthorized,
			wantBody: `User ID not found in token`,
		},
	}

	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
