package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/http/middleware"
	"github.com/Em-Vi/MediScan/internal/search"
	"github.com/Em-Vi/MediScan/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService registers and authenticates accounts.
type AuthService interface {
	Signup(ctx context.Context, email, username, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Verify(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Me(ctx context.Context, userID string) (*services.Profile, error)
}

// ConversationService runs chat turns.
type ConversationService interface {
	Converse(ctx context.Context, userID, text, sessionID string) (*services.ConverseResult, error)
}

// HistoryService serves stored conversations. The version methods return
// opaque strings that change whenever the underlying data does.
type HistoryService interface {
	GetUserHistory(ctx context.Context, callerID, userID string) ([]domain.SessionSummary, error)
	GetSessionMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error)
	RenameSession(ctx context.Context, userID, sessionID, title string) error
	Search(ctx context.Context, callerID, userID, query string, k int) ([]search.Result, error)
	HistoryVersion(ctx context.Context, callerID, userID string) (string, error)
	SessionVersion(ctx context.Context, userID, sessionID string) (string, error)
}

// PrescriptionService reads prescription images.
type PrescriptionService interface {
	AnalyzePrescription(ctx context.Context, image []byte) (string, error)
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// UploadService keeps uploaded images.
type UploadService interface {
	Upload(ctx context.Context, userID, originalName string, data []byte) (*domain.Upload, error)
	List(ctx context.Context, userID string) ([]domain.Upload, error)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Replay may be nil, which disables
// Idempotency-Key replays.
type Deps struct {
	Auth          AuthService
	Conversations ConversationService
	History       HistoryService
	Prescriptions PrescriptionService
	Uploads       UploadService
	Replay        ReplayStore

	// MaxUploadBytes caps multipart image uploads. Zero means 10 MiB.
	MaxUploadBytes int64
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	auth      AuthService
	conv      ConversationService
	history   HistoryService
	rx        PrescriptionService
	uploads   UploadService
	replay    ReplayStore
	maxUpload int64
}

const defaultMaxUpload = 10 << 20

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	limit := d.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	return &Handlers{
		auth:      d.Auth,
		conv:      d.Conversations,
		history:   d.History,
		rx:        d.Prescriptions,
		uploads:   d.Uploads,
		replay:    d.Replay,
		maxUpload: limit,
	}
}

// principal returns the authenticated user id, answering 401 when the route
// was mounted without RequireAuth.
func principal(c *gin.Context) (string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrUnauthenticated.Error())
		return "", false
	}
	return uid, true
}
