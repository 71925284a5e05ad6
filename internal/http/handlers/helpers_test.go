package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/http/middleware"
	"github.com/Em-Vi/MediScan/internal/search"
	"github.com/Em-Vi/MediScan/internal/services"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// newTestEngine mounts h the way the router does. Bearer "tok-<id>"
// authenticates user <id>.
func newTestEngine(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())

	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/verify", h.Verify)
	r.POST("/auth/send-verification", h.SendVerification)

	authn := middleware.RequireAuth(middleware.AuthenticatorFunc(func(tok string) (string, error) {
		if uid, found := strings.CutPrefix(tok, "tok-"); found {
			return uid, nil
		}
		return "", services.ErrUnauthenticated
	}))
	api := r.Group("", authn)
	api.GET("/auth/me", h.Me)
	api.POST("/chat", middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: ChatScope}, nil), h.Chat)
	api.GET("/history/:user_id", h.GetHistory)
	api.GET("/history/:user_id/:session_id", h.GetSessionMessages)
	api.PUT("/history/:user_id/:session_id/title", h.RenameSession)
	api.GET("/search/:user_id", h.Search)
	api.POST("/image/analyze", h.AnalyzeImage)
	api.POST("/image/ocr", h.ExtractImageText)
	api.POST("/image/upload", h.UploadImage)
	api.GET("/image/uploads", h.ListUploads)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doUpload(t *testing.T, r http.Handler, path, token, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "rx.png")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (body %s)", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != code || er.RequestID == "" {
		t.Fatalf("envelope = %+v; want code %q with request id", er, code)
	}
	return er
}

//
// Fakes
//

type fakeAuth struct {
	token   string
	err     error
	profile *services.Profile

	mu    sync.Mutex
	calls []string
}

func (f *fakeAuth) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeAuth) Signup(_ context.Context, email, username, password string) (string, error) {
	f.record("signup:" + email + ":" + username)
	return f.token, f.err
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (string, error) {
	f.record("login:" + email)
	return f.token, f.err
}

func (f *fakeAuth) Verify(_ context.Context, token string) error {
	f.record("verify:" + token)
	return f.err
}

func (f *fakeAuth) ResendVerification(_ context.Context, email string) error {
	f.record("resend:" + email)
	return f.err
}

func (f *fakeAuth) Me(_ context.Context, userID string) (*services.Profile, error) {
	f.record("me:" + userID)
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type converseCall struct{ userID, text, sessionID string }

type fakeConv struct {
	res *services.ConverseResult
	err error

	mu    sync.Mutex
	calls []converseCall
}

func (f *fakeConv) Converse(_ context.Context, userID, text, sessionID string) (*services.ConverseResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, converseCall{userID, text, sessionID})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeConv) Calls() []converseCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]converseCall(nil), f.calls...)
}

type fakeHistory struct {
	sessions []domain.SessionSummary
	messages []domain.Message
	results  []search.Result
	version  string
	err      error

	lastRename string
	lastK      int
	lastQuery  string
}

func (f *fakeHistory) GetUserHistory(context.Context, string, string) ([]domain.SessionSummary, error) {
	return f.sessions, f.err
}

func (f *fakeHistory) GetSessionMessages(context.Context, string, string) ([]domain.Message, error) {
	return f.messages, f.err
}

func (f *fakeHistory) RenameSession(_ context.Context, _, _, title string) error {
	f.lastRename = title
	return f.err
}

func (f *fakeHistory) Search(_ context.Context, _, _, query string, k int) ([]search.Result, error) {
	f.lastQuery, f.lastK = query, k
	return f.results, f.err
}

func (f *fakeHistory) HistoryVersion(context.Context, string, string) (string, error) {
	return f.version, f.err
}

func (f *fakeHistory) SessionVersion(context.Context, string, string) (string, error) {
	return f.version, f.err
}

type fakeRx struct {
	analysis string
	text     string
	err      error
	calls    int
	lastLen  int
}

func (f *fakeRx) AnalyzePrescription(_ context.Context, image []byte) (string, error) {
	f.calls++
	f.lastLen = len(image)
	return f.analysis, f.err
}

func (f *fakeRx) ExtractText(_ context.Context, image []byte) (string, error) {
	f.calls++
	f.lastLen = len(image)
	return f.text, f.err
}

type fakeUploads struct {
	up    *domain.Upload
	list  []domain.Upload
	err   error
	names []string
}

func (f *fakeUploads) Upload(_ context.Context, _, originalName string, _ []byte) (*domain.Upload, error) {
	f.names = append(f.names, originalName)
	return f.up, f.err
}

func (f *fakeUploads) List(context.Context, string) ([]domain.Upload, error) {
	return f.list, f.err
}
