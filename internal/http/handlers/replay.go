package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/repo"
)

// ChatScope namespaces Idempotency-Key records written by POST /chat.
const ChatScope = "chat"

// ReplayStore remembers which AI reply answered an Idempotency-Key.
type ReplayStore interface {
	// Replay returns the stored reply for key, or ok=false.
	Replay(ctx context.Context, userID, key string) (msg *domain.Message, ok bool, err error)
	// Remember records messageID as the answer to key.
	Remember(ctx context.Context, userID, key, messageID string) error
}

// DBReplayStore keeps replay records in the idempotency table.
type DBReplayStore struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// NewReplayStore returns a DBReplayStore. A non-positive ttl means 24h.
func NewReplayStore(db *gorm.DB, ttl time.Duration) *DBReplayStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DBReplayStore{DB: db, TTL: ttl, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *DBReplayStore) Replay(ctx context.Context, userID, key string) (*domain.Message, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, ChatScope, key, s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// Remember ignores a concurrent duplicate; the first writer wins.
func (s *DBReplayStore) Remember(ctx context.Context, userID, key, messageID string) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, ChatScope, key, messageID, http.StatusOK, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Exists reports whether an unexpired record exists, for
// middleware.IdempotencyLookup.
func (s *DBReplayStore) Exists(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
