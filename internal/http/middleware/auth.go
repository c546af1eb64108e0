// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides bearer-token authentication. Tokens are HS256 JWTs
// minted by the identity service; this API only verifies them and extracts
// the subject. Two variants are exposed:
//
//   - Auth() rejects requests without a valid token (401).
//   - OptionalAuth() attaches the identity when a valid token is present and
//     lets anonymous requests through; per-actor rate limiting then falls
//     back to the client IP.
//
// On success both variants store "userID" and "userRole" in the Gin context
// for downstream middleware and handlers.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims this API understands.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that requires a valid bearer token.
//
// Missing, malformed, or unverifiable tokens abort the request with 401 and
// the standard error envelope.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := parseToken(token, secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set("userID", subjectOf(claims))
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// OptionalAuth returns a middleware that attaches the identity when a valid
// bearer token is present and otherwise continues anonymously. An invalid
// token is still rejected: silently downgrading a bad credential to anonymous
// would mask client bugs.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := parseToken(token, secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set("userID", subjectOf(claims))
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// parseToken verifies an HS256 JWT and returns its claims.
func parseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// subjectOf prefers the custom user_id claim and falls back to the
// registered subject.
func subjectOf(claims *Claims) string {
	if claims.UserID != "" {
		return claims.UserID
	}
	return claims.Subject
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
