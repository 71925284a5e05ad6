package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Em-Vi/MediScan/internal/domain"
)

func TestCreateSession_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if s, err := CreateSession(context.Background(), db, "u1", "t"); err == nil || s != nil {
		t.Fatalf("expected error without table, got s=%v err=%v", s, err)
	}
}

func TestCreateSession_PersistsFields(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	u := seedUser(t, db, "a@x.io")

	start := time.Now().UTC().Add(-time.Minute)
	s, err := CreateSession(ctx, db, u.ID, "Dosage")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" || s.UserID != u.ID || s.Title != "Dosage" || s.CreatedAt.Before(start) {
		t.Fatalf("unexpected session: %+v", s)
	}

	got, err := GetSession(ctx, db, s.ID)
	if err != nil || got.Title != "Dosage" {
		t.Fatalf("GetSession: err=%v got=%+v", err, got)
	}
	if _, err := GetSession(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions_ScopedToUser(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	a := seedUser(t, db, "a@x.io")
	b := seedUser(t, db, "b@x.io")
	seedSession(t, db, a.ID)
	seedSession(t, db, a.ID)
	seedSession(t, db, b.ID)

	got, err := ListSessions(ctx, db, a.ID)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListSessions: err=%v len=%d", err, len(got))
	}
	for _, s := range got {
		if s.UserID != a.ID {
			t.Fatalf("foreign session leaked: %+v", s)
		}
	}
}

func TestUpdateSessionTitle(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	u := seedUser(t, db, "a@x.io")
	s := seedSession(t, db, u.ID)

	if err := UpdateSessionTitle(ctx, db, s.ID, u.ID, "Renamed"); err != nil {
		t.Fatalf("UpdateSessionTitle: %v", err)
	}
	got, _ := GetSession(ctx, db, s.ID)
	if got.Title != "Renamed" {
		t.Fatalf("title not updated: %+v", got)
	}
	if err := UpdateSessionTitle(ctx, db, s.ID, "someone-else", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}
}

func TestStartSession_WritesSessionAndMessagesTogether(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	u := seedUser(t, db, "a@x.io")

	s, msgs, err := StartSession(ctx, db, u.ID, "Dosage", []NewMessage{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAI, Content: "a"},
	}, time.Now())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(msgs) != 2 || msgs[0].SessionID != s.ID || msgs[1].UserID != u.ID {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	// The CHECK on role fails the append; the session must not survive it.
	_, _, err = StartSession(ctx, db, u.ID, "Broken", []NewMessage{
		{Role: domain.RoleUser, Content: "q"},
		{Role: "assistant", Content: "a"},
	}, time.Now())
	if err == nil {
		t.Fatalf("expected role constraint error")
	}
	got, err := ListSessions(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != s.ID {
		t.Fatalf("failed start left sessions behind: %+v", got)
	}
}
