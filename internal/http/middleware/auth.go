// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. RequireAuth resolves the
// Authorization header to a user id through an Authenticator and stores it in
// the Gin context, where UserID retrieves it. The request-scoped logger is
// enriched with the user id so every later log line carries it.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyUserID is the Gin context key holding the authenticated user id.
const ctxKeyUserID = "userID"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(token string) (string, error)

func (f AuthenticatorFunc) Authenticate(token string) (string, error) { return f(token) }

// RequireAuth rejects requests without a valid "Authorization: Bearer <token>"
// header with 401 and the standard error envelope.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="mediscan"`)
			abortUnauthorized(c, "missing bearer token")
			return
		}
		uid, err := a.Authenticate(token)
		if err != nil || uid == "" {
			c.Header("WWW-Authenticate", `Bearer realm="mediscan", error="invalid_token"`)
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ctxKeyUserID, uid)
		lg := LoggerFrom(c).With().Str("user_id", uid).Logger()
		setLogger(c, &lg)
		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// bearerToken extracts the token of a "Bearer" authorization header. The
// scheme is case-insensitive.
func bearerToken(h string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
