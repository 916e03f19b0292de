package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/pkg/jwt"
	"github.com/paperdeck/core/internal/pkg/response"
)

const ContextKeySubject = "auth_subject"

// Auth returns a middleware that enforces JWT or access-token authentication.
// accessToken is the static admin token from the runtime config; empty
// disables the static-token path.
func Auth(accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := validateToken(accessToken, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}

func validateToken(accessToken, raw string) (string, error) {
	token := NormalizeToken(raw)
	if token == "" {
		return "", errors.New("token is required")
	}

	if accessToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(accessToken)) == 1 {
		return "admin", nil
	}

	claims, err := jwt.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// CurrentSubject extracts the authenticated subject from context.
func CurrentSubject(c *gin.Context) string {
	v, _ := c.Get(ContextKeySubject)
	id, _ := v.(string)
	return id
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
