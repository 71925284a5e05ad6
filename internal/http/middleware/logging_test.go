package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogger swaps the global logger for a JSON one writing into the
// returned buffer.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		c.String(http.StatusOK, asString(v))
	})

	cases := []struct {
		name   string
		header string
		value  string
	}{
		{"generated", "", ""},
		{"canonical header", requestIDHeader, "Z-REQ-123"},
		{"lowercase header", strings.ToLower(requestIDHeader), "abc-123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q must match and be set", got, w.Body.String())
			}
			if tc.value != "" && got != tc.value {
				t.Fatalf("request id = %q; want %q", got, tc.value)
			}
		})
	}
}

func TestLogger_LevelByOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/history/:user_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/chat", func(c *gin.Context) {
		_ = c.Error(errors.New("assistant offline"))
		c.Status(http.StatusBadRequest)
	})

	for _, p := range []struct{ method, path string }{
		{http.MethodGet, "/history/u1"},
		{http.MethodGet, "/missing"},
		{http.MethodPost, "/chat"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(p.method, p.path, nil))
	}

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("want 3 access lines, got %d: %s", len(lines), buf.String())
	}
	want := []struct{ level, path string }{
		{"info", "/history/:user_id"}, // route pattern, not the raw id
		{"warn", "/missing"},          // unmatched routes fall back to the raw path
		{"error", "/chat"},            // gin errors win over the 4xx status
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["path"] != w.path {
			t.Fatalf("line %d = level %v path %v; want %s %s", i, lines[i]["level"], lines[i]["path"], w.level, w.path)
		}
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.POST("/image/analyze", func(c *gin.Context) { panic("ocr exploded") })
	r.POST("/image/ocr", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/image/analyze", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != w.Header().Get(requestIDHeader) {
		t.Fatalf("unexpected body: %v", body)
	}

	// Once the body is written only the status can change.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/image/ocr", nil))
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("no JSON envelope after a partial write, body=%q", w.Body.String())
	}

	panics := 0
	for _, l := range logLines(t, buf) {
		if l["message"] == "panic recovered" {
			panics++
		}
	}
	if panics != 2 {
		t.Fatalf("want 2 panic logs, got %d:\n%s", panics, buf.String())
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))

	out := buf.String()
	if !strings.Contains(out, `"message":"custom"`) || strings.Contains(out, `"request_id"`) {
		t.Fatalf("fallback logger must log without request fields: %s", out)
	}
}

func TestLogger_RequestContextCarriesLoggerAndUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.Use(RequireAuth(AuthenticatorFunc(func(string) (string, error) { return "u-42", nil })))
	r.GET("/svc", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("from service")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/svc", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set(requestIDHeader, "rid-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var serviceLine, accessLine map[string]any
	for _, m := range logLines(t, buf) {
		switch m["message"] {
		case "from service":
			serviceLine = m
		case "request":
			accessLine = m
		}
	}
	if serviceLine == nil || serviceLine["request_id"] != "rid-7" || serviceLine["user_id"] != "u-42" {
		t.Fatalf("service log lacks request fields: %v", serviceLine)
	}
	if accessLine == nil || accessLine["user_id"] != "u-42" {
		t.Fatalf("access log lacks user id: %v", accessLine)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
	if asString(123) != "" {
		t.Fatalf("asString of non-string must be empty")
	}
}
