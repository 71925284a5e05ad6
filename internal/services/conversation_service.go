// Package services – ConversationService
//
// ConversationService runs one chat turn: it validates the message, asks the
// AI collaborator for a reply, opens a session on the first turn, and
// persists the user message together with the reply.
//
// An AI outage never fails the turn. The failure is logged and counted and a
// fixed apology is stored and returned in place of the model reply.
package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/repo"
)

// titleWords is how many words of the reply make up a derived title.
const titleWords = 6

// ConversationService coordinates a chat turn.
type ConversationService struct {
	Store *SessionStore
	AI    ai.Generator

	// MaxPromptRunes rejects longer messages when > 0.
	MaxPromptRunes int

	// TitleLocale drives title casing. Defaults to English.
	TitleLocale language.Tag
}

// ConverseResult is the outcome of a chat turn.
type ConverseResult struct {
	Reply      string
	SessionID  string
	MessageID  string
	NewSession bool
	// Degraded is set when Reply is the fallback apology.
	Degraded bool
}

// Converse answers text for userID inside sessionID, or inside a new session
// when sessionID is empty.
func (s *ConversationService) Converse(ctx context.Context, userID, text, sessionID string) (*ConverseResult, error) {
	ctx, span := observability.StartSpan(ctx, "ConversationService.Converse",
		attribute.String("user.id", userID),
		attribute.String("session.id", sessionID))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(text) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	ok, err := repo.UserExists(ctx, s.Store.DB, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if sessionID != "" {
		if _, err := s.Store.OwnedSession(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	}

	reply, degraded := s.generate(ctx, text)

	res := &ConverseResult{Reply: reply, SessionID: sessionID, Degraded: degraded}
	turn := []NewMessage{
		{Role: domain.RoleUser, Content: text},
		{Role: domain.RoleAI, Content: reply},
	}
	var msgs []domain.Message
	if sessionID == "" {
		source := reply
		if degraded {
			source = text
		}
		var sess *domain.Session
		sess, msgs, err = s.Store.StartSession(ctx, userID, s.deriveTitle(source), turn)
		if err != nil {
			return nil, err
		}
		res.SessionID = sess.ID
		res.NewSession = true
	} else if msgs, err = s.Store.AppendMessages(ctx, sessionID, userID, turn); err != nil {
		return nil, err
	}
	res.MessageID = msgs[len(msgs)-1].ID

	observability.ConversationTurn(res.NewSession)
	return res, nil
}

// generate calls the AI collaborator and absorbs its failures.
func (s *ConversationService) generate(ctx context.Context, text string) (reply string, degraded bool) {
	start := time.Now()
	reply, err := s.AI.Generate(ctx, ai.ChatPrompt(text))
	observability.ObserveCollaborator(observability.CollaboratorAI, start)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ai.ErrEmptyCompletion
	}
	if err != nil {
		observability.CollaboratorFailed(observability.CollaboratorAI)
		loggerFor(ctx).Warn().Err(err).Msg("ai generation failed; replying with fallback")
		return ai.FallbackReply, true
	}
	return reply, false
}

// deriveTitle builds a short title from the first words of src.
func (s *ConversationService) deriveTitle(src string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(src), titleWords)
	if len(toks) == 0 {
		return domain.DefaultSessionTitle
	}
	locale := s.TitleLocale
	if locale == language.Und {
		locale = language.English
	}
	caser := cases.Title(locale)
	for i, w := range toks {
		toks[i] = caser.String(w)
	}
	return clipTitle(strings.Join(toks, " "))
}

// Extract Unicode letters with optional trailing numbers (e.g., "b12").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// loggerFor returns the request logger carried by ctx, or the global one.
func loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
