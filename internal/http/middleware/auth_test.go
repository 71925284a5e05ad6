package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authRouter(a Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequireAuth(a))
	r.GET("/me", func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, uid)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	a := AuthenticatorFunc(func(tok string) (string, error) {
		if tok == "good" {
			return "u1", nil
		}
		return "", errors.New("bad token")
	})
	r := authRouter(a)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer good", http.StatusOK, "u1"},
		{"scheme is case-insensitive", "bearer good", http.StatusOK, "u1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusOK {
				if w.Body.String() != tc.body {
					t.Fatalf("body = %q; want %q", w.Body.String(), tc.body)
				}
				return
			}
			var env map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if env["code"] != "unauthorized" || env["request_id"] == "" {
				t.Fatalf("unexpected envelope: %v", env)
			}
			if w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestUserID_AbsentOrWrongType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := UserID(c); ok {
		t.Fatalf("expected no user id")
	}
	c.Set(ctxKeyUserID, 42)
	if _, ok := UserID(c); ok {
		t.Fatalf("non-string user id must be ignored")
	}
}
