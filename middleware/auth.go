package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	UserIDKey      = "user_id"
	TokenExpiryKey = "token_expiry"
)

const bearerPrefix = "Bearer "

type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) Sign(userID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
		"type": "access",
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates the token and returns its subject and expiry.
func (m *TokenManager) Parse(tokenStr string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	if !token.Valid {
		return "", time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errors.New("invalid token claims")
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return "", time.Time{}, errors.New("invalid token type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", time.Time{}, errors.New("token has no subject")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", time.Time{}, errors.New("token has no expiry")
	}
	return sub, exp.Time, nil
}

// AuthMiddleware requires a bearer token and stores its subject under
// UserIDKey.
func AuthMiddleware(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Autenticação necessária",
				"code":    "MISSING_TOKEN",
			})
			return
		}

		raw, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Formato de autorização inválido",
				"code":    "INVALID_AUTH_FORMAT",
			})
			return
		}

		userID, exp, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Sessão inválida ou expirada",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(TokenExpiryKey, exp)
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func TokenExpiry(c *gin.Context) time.Time {
	return c.GetTime(TokenExpiryKey)
}
