// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// NewMessage is one entry of a batch passed to AppendMessages.
type NewMessage struct {
	Role    string
	Content string
}

// AppendMessages persists msgs to a session in a single transaction: either
// every message is written or none is. Timestamps are assigned strictly
// increasing in batch order and strictly after the session's latest message,
// starting no earlier than now. The session's updated_at follows the last
// written timestamp.
//
// It returns ErrNotFound if the session does not exist and ErrNotOwner if
// userID does not own it.
func AppendMessages(ctx context.Context, db *gorm.DB, sessionID, userID string, msgs []NewMessage, now time.Time) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(msgs))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := GetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return ErrNotOwner
		}

		last, err := latestTimestamp(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		base := now.UTC()
		if last != nil && !base.After(*last) {
			base = last.Add(time.Microsecond)
		}

		for i, nm := range msgs {
			m := domain.Message{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				UserID:    userID,
				Role:      nm.Role,
				Content:   nm.Content,
				Timestamp: base.Add(time.Duration(i) * time.Microsecond),
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			out = append(out, m)
		}
		if len(out) == 0 {
			return nil
		}
		return touchSession(ctx, tx, sessionID, out[len(out)-1].Timestamp)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// latestTimestamp returns the newest message timestamp of a session, or nil.
func latestTimestamp(ctx context.Context, db *gorm.DB, sessionID string) (*time.Time, error) {
	var rows []struct {
		Timestamp time.Time
	}
	// Avoid MAX() since SQLite hands it back as TEXT.
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("timestamp").
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	ts := rows[0].Timestamp.UTC()
	return &ts, nil
}

// ListMessages returns a session's messages ordered deterministically
// (Timestamp ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListMessagesForUser returns every message owned by userID across sessions,
// ordered by (Timestamp ASC, ID ASC).
func ListMessagesForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
