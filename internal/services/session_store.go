// Package services – SessionStore
//
// SessionStore is the Message/Session Store: it owns the canonical sessions
// and messages tables and exposes the operations the conversation and
// history flows are built on. Validation and ownership rules live here; the
// SQL lives in package repo.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/repo"
)

// TitleMaxLen caps stored session titles by rune length.
const TitleMaxLen = 60

// NewMessage is one entry of an atomic append.
type NewMessage = repo.NewMessage

// SessionStore persists sessions and messages.
type SessionStore struct {
	DB *gorm.DB

	// Now is the clock used for message timestamps. Defaults to time.Now.
	Now func() time.Time

	appends keyedMutex
}

// NewSessionStore returns a store over db.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{DB: db, Now: time.Now}
}

func (s *SessionStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// CreateSession creates a session owned by userID. The owner must exist.
// A blank title becomes domain.DefaultSessionTitle.
func (s *SessionStore) CreateSession(ctx context.Context, userID, title string) (*domain.Session, error) {
	ctx, span := observability.StartSpan(ctx, "SessionStore.CreateSession",
		attribute.String("user.id", userID))
	defer span.End()

	ok, err := repo.UserExists(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	return repo.CreateSession(ctx, s.DB, userID, storedTitle(title))
}

// StartSession creates a session for userID holding msgs as its first
// messages. Either both the session and every message are written or
// nothing is.
func (s *SessionStore) StartSession(ctx context.Context, userID, title string, msgs []NewMessage) (*domain.Session, []domain.Message, error) {
	ctx, span := observability.StartSpan(ctx, "SessionStore.StartSession",
		attribute.String("user.id", userID),
		attribute.Int("messages", len(msgs)))
	defer span.End()

	for _, m := range msgs {
		if !domain.ValidRole(m.Role) {
			return nil, nil, ErrInvalidRole
		}
	}
	ok, err := repo.UserExists(ctx, s.DB, userID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrUserNotFound
	}
	return repo.StartSession(ctx, s.DB, userID, storedTitle(title), msgs, s.now())
}

func storedTitle(title string) string {
	title = clipTitle(normalizeTitle(title))
	if title == "" {
		return domain.DefaultSessionTitle
	}
	return title
}

// AppendMessages writes msgs to sessionID as one unit: all of them or none.
// Appends to the same session are serialized.
func (s *SessionStore) AppendMessages(ctx context.Context, sessionID, userID string, msgs []NewMessage) ([]domain.Message, error) {
	ctx, span := observability.StartSpan(ctx, "SessionStore.AppendMessages",
		attribute.String("session.id", sessionID),
		attribute.Int("messages", len(msgs)))
	defer span.End()

	for _, m := range msgs {
		if !domain.ValidRole(m.Role) {
			return nil, ErrInvalidRole
		}
	}

	unlock := s.appends.Lock(sessionID)
	defer unlock()

	out, err := repo.AppendMessages(ctx, s.DB, sessionID, userID, msgs, s.now())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, repo.ErrNotOwner):
		return nil, ErrForbidden
	}
	return out, err
}

// ListSessionsForUser returns the user's session summaries, most recently
// active first.
func (s *SessionStore) ListSessionsForUser(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	ctx, span := observability.StartSpan(ctx, "SessionStore.ListSessionsForUser",
		attribute.String("user.id", userID))
	defer span.End()

	return repo.ListSessionSummaries(ctx, s.DB, userID)
}

// ListMessages returns the messages of a session in timestamp order.
func (s *SessionStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := observability.StartSpan(ctx, "SessionStore.ListMessages",
		attribute.String("session.id", sessionID))
	defer span.End()

	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	msgs, err := repo.ListMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// OwnedSession returns the session if it exists and belongs to userID.
func (s *SessionStore) OwnedSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *SessionStore) session(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// clipTitle truncates a title to TitleMaxLen runes.
func clipTitle(title string) string {
	if utf8.RuneCountInString(title) > TitleMaxLen {
		return strings.TrimSpace(string([]rune(title)[:TitleMaxLen]))
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
