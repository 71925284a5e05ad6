package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Em-Vi/MediScan/internal/domain"
)

func TestSessionStore_CreateSession_UnknownUser(t *testing.T) {
	st := NewSessionStore(newSvcDB(t))
	_, err := st.CreateSession(context.Background(), "nobody", "x")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestSessionStore_CreateSession_Titles(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	u := seedUser(t, db, "a@x.com")
	ctx := context.Background()

	s, err := st.CreateSession(ctx, u.ID, "   ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Title != domain.DefaultSessionTitle {
		t.Fatalf("blank title = %q; want %q", s.Title, domain.DefaultSessionTitle)
	}

	s, err = st.CreateSession(ctx, u.ID, "  Dosage \n\t questions  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Title != "Dosage questions" {
		t.Fatalf("normalized title = %q", s.Title)
	}

	s, err = st.CreateSession(ctx, u.ID, strings.Repeat("é", 100))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := len([]rune(s.Title)); got != TitleMaxLen {
		t.Fatalf("clipped title has %d runes; want %d", got, TitleMaxLen)
	}
}

func TestSessionStore_AppendMessages_Validation(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	u := seedUser(t, db, "a@x.com")
	ctx := context.Background()

	_, err := st.AppendMessages(ctx, "missing", u.ID, []NewMessage{{Role: domain.RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}

	s, _ := st.CreateSession(ctx, u.ID, "")
	_, err = st.AppendMessages(ctx, s.ID, u.ID, []NewMessage{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("want ErrInvalidRole, got %v", err)
	}
	msgs, err := st.ListMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("rejected batch left %d messages", len(msgs))
	}
}

func TestSessionStore_AppendMessages_OnlyOwnerWrites(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	alice := seedUser(t, db, "a@x.com")
	bob := seedUser(t, db, "b@x.com")
	ctx := context.Background()
	s, _ := st.CreateSession(ctx, alice.ID, "")

	_, err := st.AppendMessages(ctx, s.ID, bob.ID, []NewMessage{{Role: domain.RoleUser, Content: "amoxicillin"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	sums, err := st.ListSessionsForUser(ctx, alice.ID)
	if err != nil || len(sums) != 1 {
		t.Fatalf("owner summaries: err=%v n=%d", err, len(sums))
	}
	if sums[0].MessageCount != 0 || sums[0].LastMessage != nil {
		t.Fatalf("rejected append leaked into the owner's summary: %+v", sums[0])
	}

	hist := &HistoryService{Store: st}
	hits, err := hist.Search(ctx, bob.ID, bob.ID, "amoxicillin", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("bob found %d messages in alice's session", len(hits))
	}
}

func TestSessionStore_TimestampsStrictlyIncreaseUnderFrozenClock(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	frozen := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	st.Now = func() time.Time { return frozen }
	u := seedUser(t, db, "a@x.com")
	ctx := context.Background()

	s, _ := st.CreateSession(ctx, u.ID, "")
	for i := 0; i < 3; i++ {
		if _, err := st.AppendMessages(ctx, s.ID, u.ID, []NewMessage{
			{Role: domain.RoleUser, Content: "q"},
			{Role: domain.RoleAI, Content: "a"},
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := st.ListMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("got %d messages; want 6", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].Timestamp.After(msgs[i-1].Timestamp) {
			t.Fatalf("timestamps not increasing at %d: %v then %v", i, msgs[i-1].Timestamp, msgs[i].Timestamp)
		}
		if msgs[i-1].Role == msgs[i].Role {
			t.Fatalf("roles out of order at %d", i)
		}
	}
}

func TestSessionStore_ConcurrentAppendsKeepPairsTogether(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	u := seedUser(t, db, "a@x.com")
	ctx := context.Background()
	s, _ := st.CreateSession(ctx, u.ID, "")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.AppendMessages(ctx, s.ID, u.ID, []NewMessage{
				{Role: domain.RoleUser, Content: "q"},
				{Role: domain.RoleAI, Content: "a"},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := st.ListMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2*n {
		t.Fatalf("got %d messages; want %d", len(msgs), 2*n)
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Role != domain.RoleUser || msgs[i+1].Role != domain.RoleAI {
			t.Fatalf("pair %d interleaved: %s,%s", i/2, msgs[i].Role, msgs[i+1].Role)
		}
	}
	if st.appends.size() != 0 {
		t.Fatalf("keyed mutex leaked %d entries", st.appends.size())
	}
}

func TestSessionStore_ListMessages_UnknownSession(t *testing.T) {
	st := NewSessionStore(newSvcDB(t))
	if _, err := st.ListMessages(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStore_OwnedSession(t *testing.T) {
	db := newSvcDB(t)
	st := NewSessionStore(db)
	alice := seedUser(t, db, "a@x.com")
	bob := seedUser(t, db, "b@x.com")
	ctx := context.Background()
	s, _ := st.CreateSession(ctx, alice.ID, "")

	if _, err := st.OwnedSession(ctx, alice.ID, s.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := st.OwnedSession(ctx, bob.ID, s.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	var km keyedMutex
	unlockA := km.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()

	// A different key is never blocked.
	unlockB := km.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the key")
	}
}
