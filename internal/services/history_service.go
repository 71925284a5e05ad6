// Package services – HistoryService
//
// HistoryService reconstructs what a user has said so far: per-user session
// summaries, the ordered messages of one session, and keyword search over
// the user's own messages. Every read checks ownership.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/repo"
	"github.com/Em-Vi/MediScan/internal/search"
)

const (
	defaultSearchK = 5
	maxSearchK     = 50
)

// HistoryService serves conversation history.
type HistoryService struct {
	Store *SessionStore

	// SearchOptions tune the keyword index built per search.
	SearchOptions []search.Option
}

// GetUserHistory returns the session summaries of userID. callerID must be
// the same user.
func (s *HistoryService) GetUserHistory(ctx context.Context, callerID, userID string) ([]domain.SessionSummary, error) {
	ctx, span := observability.StartSpan(ctx, "HistoryService.GetUserHistory",
		attribute.String("user.id", userID))
	defer span.End()

	if callerID != userID {
		return nil, ErrForbidden
	}
	return s.Store.ListSessionsForUser(ctx, userID)
}

// GetSessionMessages returns the messages of sessionID in timestamp order,
// provided the session belongs to userID.
func (s *HistoryService) GetSessionMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	ctx, span := observability.StartSpan(ctx, "HistoryService.GetSessionMessages",
		attribute.String("user.id", userID),
		attribute.String("session.id", sessionID))
	defer span.End()

	if _, err := s.Store.OwnedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.Store.ListMessages(ctx, sessionID)
}

// RenameSession sets the title of a session owned by userID. A blank title
// resets it to the default.
func (s *HistoryService) RenameSession(ctx context.Context, userID, sessionID, title string) error {
	ctx, span := observability.StartSpan(ctx, "HistoryService.RenameSession",
		attribute.String("session.id", sessionID))
	defer span.End()

	if _, err := s.Store.OwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	title = clipTitle(normalizeTitle(title))
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	if err := repo.UpdateSessionTitle(ctx, s.Store.DB, sessionID, userID, title); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Search ranks the user's own messages against query and returns at most k
// hits. k <= 0 means the default; k is capped.
func (s *HistoryService) Search(ctx context.Context, callerID, userID, query string, k int) ([]search.Result, error) {
	ctx, span := observability.StartSpan(ctx, "HistoryService.Search",
		attribute.String("user.id", userID),
		attribute.Int("k", k))
	defer span.End()

	if callerID != userID {
		return nil, ErrForbidden
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = defaultSearchK
	}
	if k > maxSearchK {
		k = maxSearchK
	}

	msgs, err := repo.ListMessagesForUser(ctx, s.Store.DB, userID)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Doc, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, search.Doc{ID: m.ID, Ref: m.SessionID, Text: m.Content})
	}
	out := search.NewIndex(docs, s.SearchOptions...).TopK(query, k)
	if out == nil {
		out = []search.Result{}
	}
	return out, nil
}

// HistoryVersion returns an opaque value that changes whenever the history
// of userID changes. Handlers use it as an entity tag.
func (s *HistoryService) HistoryVersion(ctx context.Context, callerID, userID string) (string, error) {
	if callerID != userID {
		return "", ErrForbidden
	}
	sessions, messages, updated, err := repo.HistoryStats(ctx, s.Store.DB, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("history:%s:%d:%d:%d", userID, sessions, messages, unixNano(updated)), nil
}

// SessionVersion is HistoryVersion for one session's messages.
func (s *HistoryService) SessionVersion(ctx context.Context, userID, sessionID string) (string, error) {
	if _, err := s.Store.OwnedSession(ctx, userID, sessionID); err != nil {
		return "", err
	}
	count, latest, err := repo.SessionStats(ctx, s.Store.DB, sessionID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("session:%s:%d:%d", sessionID, count, unixNano(latest)), nil
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
