package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/domain"
)

func newConversation(t *testing.T, gen ai.Generator) (*ConversationService, *HistoryService, *domain.User) {
	t.Helper()
	db := newSvcDB(t)
	st := NewSessionStore(db)
	u := seedUser(t, db, "u1@x.com")
	return &ConversationService{Store: st, AI: gen, MaxPromptRunes: 100}, &HistoryService{Store: st}, u
}

func TestConverse_HelloScenario(t *testing.T) {
	gen := &fakeAI{reply: "Hi there"}
	conv, hist, u := newConversation(t, gen)
	ctx := context.Background()

	res, err := conv.Converse(ctx, u.ID, "Hello", "")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if res.Reply != "Hi there" || res.SessionID == "" || !res.NewSession || res.Degraded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gen.Calls() != 1 || gen.prompts[0] != ai.ChatPrompt("Hello") {
		t.Fatalf("ai called %d times with %q", gen.Calls(), gen.prompts)
	}

	msgs, err := hist.GetSessionMessages(ctx, u.ID, res.SessionID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages; want 2", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("first message = %s/%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != domain.RoleAI || msgs[1].Content != "Hi there" {
		t.Fatalf("second message = %s/%q", msgs[1].Role, msgs[1].Content)
	}
	if res.MessageID != msgs[1].ID {
		t.Fatalf("MessageID = %s; want the reply id %s", res.MessageID, msgs[1].ID)
	}

	sessions, err := hist.GetUserHistory(ctx, u.ID, u.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != res.SessionID {
		t.Fatalf("session %s missing from history: %+v", res.SessionID, sessions)
	}
	if sessions[0].Title != "Hi There" {
		t.Fatalf("title = %q; want derived from the reply", sessions[0].Title)
	}
	if sessions[0].LastMessage == nil || *sessions[0].LastMessage != "Hi there" {
		t.Fatalf("last message = %v", sessions[0].LastMessage)
	}
}

func TestConverse_ContinuesExistingSession(t *testing.T) {
	gen := &fakeAI{reply: "Take it with food."}
	conv, hist, u := newConversation(t, gen)
	ctx := context.Background()

	first, err := conv.Converse(ctx, u.ID, "How do I take ibuprofen?", "")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	gen.reply = "Up to three times a day."
	second, err := conv.Converse(ctx, u.ID, "How often?", first.SessionID)
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.SessionID != first.SessionID || second.NewSession {
		t.Fatalf("second turn opened a new session: %+v", second)
	}

	msgs, _ := hist.GetSessionMessages(ctx, u.ID, first.SessionID)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages; want 4", len(msgs))
	}
	if msgs[3].Content != "Up to three times a day." {
		t.Fatalf("last message = %q", msgs[3].Content)
	}
	sessions, _ := hist.GetUserHistory(ctx, u.ID, u.ID)
	if sessions[0].Title != "Take It With Food" {
		t.Fatalf("title changed on later turns: %q", sessions[0].Title)
	}
}

func TestConverse_AIFailureFallsBack(t *testing.T) {
	gen := &fakeAI{err: errBoom}
	conv, hist, u := newConversation(t, gen)
	ctx := context.Background()

	res, err := conv.Converse(ctx, u.ID, "paracetamol dosage for adults", "")
	if err != nil {
		t.Fatalf("converse must absorb ai failures, got %v", err)
	}
	if res.Reply != ai.FallbackReply || !res.Degraded {
		t.Fatalf("reply = %q degraded=%v", res.Reply, res.Degraded)
	}
	msgs, _ := hist.GetSessionMessages(ctx, u.ID, res.SessionID)
	if len(msgs) != 2 || msgs[1].Content != ai.FallbackReply {
		t.Fatalf("fallback not persisted: %+v", msgs)
	}
	sessions, _ := hist.GetUserHistory(ctx, u.ID, u.ID)
	if sessions[0].Title != "Paracetamol Dosage For Adults" {
		t.Fatalf("title = %q; want derived from the user message", sessions[0].Title)
	}
}

func TestConverse_BlankReplyIsAFailure(t *testing.T) {
	conv, _, u := newConversation(t, &fakeAI{reply: "  \n"})
	res, err := conv.Converse(context.Background(), u.ID, "hi", "")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if res.Reply != ai.FallbackReply {
		t.Fatalf("reply = %q; want fallback", res.Reply)
	}
}

func TestConverse_Validation(t *testing.T) {
	gen := &fakeAI{reply: "ok"}
	conv, _, u := newConversation(t, gen)
	ctx := context.Background()

	cases := []struct {
		name      string
		user      string
		text      string
		sessionID string
		want      error
	}{
		{"empty", u.ID, "   ", "", ErrEmptyMessage},
		{"too long", u.ID, strings.Repeat("a", 101), "", ErrTooLong},
		{"unknown user", "ghost", "hi", "", ErrUserNotFound},
		{"unknown session", u.ID, "hi", "missing", ErrSessionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := conv.Converse(ctx, tc.user, tc.text, tc.sessionID)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
	if gen.Calls() != 0 {
		t.Fatalf("ai called %d times for rejected input", gen.Calls())
	}
}

func TestConverse_ForeignSessionForbidden(t *testing.T) {
	gen := &fakeAI{reply: "ok"}
	conv, _, alice := newConversation(t, gen)
	bob := seedUser(t, conv.Store.DB, "bob@x.com")
	ctx := context.Background()

	res, err := conv.Converse(ctx, alice.ID, "hi", "")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if _, err := conv.Converse(ctx, bob.ID, "hijack", res.SessionID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	s := &ConversationService{}
	cases := map[string]string{
		"**Paracetamol** is an analgesic used for pain relief.": "Paracetamol Is An Analgesic Used For",
		"## Dosage\n- 500mg": "Dosage Mg",
		"b12 deficiency":     "B12 Deficiency",
		"!!! ???":            domain.DefaultSessionTitle,
		"":                   domain.DefaultSessionTitle,
	}
	for in, want := range cases {
		if got := s.deriveTitle(in); got != want {
			t.Fatalf("deriveTitle(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestConverse_FailedFirstAppendLeavesNoSession(t *testing.T) {
	conv, hist, u := newConversation(t, &fakeAI{reply: "Take with water."})
	ctx := context.Background()

	db := conv.Store.DB
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			_ = tx.AddError(errBoom)
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := conv.Converse(ctx, u.ID, "Can I take ibuprofen?", ""); !errors.Is(err, errBoom) {
		t.Fatalf("want injected error, got %v", err)
	}
	sessions, err := hist.GetUserHistory(ctx, u.ID, u.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("failed turn left %d empty sessions", len(sessions))
	}
}
