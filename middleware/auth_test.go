package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	tokens := NewTokenManager("secret", time.Hour)

	signed, exp, err := tokens.Sign("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, parsedExp, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
	assert.Equal(t, exp.Unix(), parsedExp.Unix())
}

func TestTokenManagerRejectsForeignSecret(t *testing.T) {
	signed, _, err := NewTokenManager("other", time.Hour).Sign("user-1")
	require.NoError(t, err)

	_, _, err = NewTokenManager("secret", time.Hour).Parse(signed)
	assert.Error(t, err)
}

type authCase struct {
	name   string
	header string
	status int
	body   string
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokenManager("secret", time.Hour)

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		assert.False(t, TokenExpiry(c).IsZero())
		c.String(http.StatusOK, UserID(c))
	})

	signed, _, err := tokens.Sign("user-42")
	require.NoError(t, err)

	tests := []authCase{
		{name: "missing", status: http.StatusUnauthorized, body: "MISSING_TOKEN"},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized, body: "INVALID_TOKEN"},
		{name: "raw token", header: signed, status: http.StatusUnauthorized, body: "INVALID_AUTH_FORMAT"},
		{name: "other scheme", header: "Token " + signed, status: http.StatusUnauthorized, body: "INVALID_AUTH_FORMAT"},
		{name: "lowercase scheme", header: "bearer " + signed, status: http.StatusUnauthorized, body: "INVALID_AUTH_FORMAT"},
		{name: "valid", header: "Bearer " + signed, status: http.StatusOK, body: "user-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
