// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// HistoryStats summarizes a user's history for cache validation: the number
// of sessions, the number of messages, and the greatest session updated_at.
// Appending a message or renaming a session changes at least one of them.
// When the user has no sessions, maxUpdatedAt is nil.
func HistoryStats(ctx context.Context, db *gorm.DB, userID string) (sessions, messages int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Session{}).Where("user_id = ?", userID)
	if err = q.Count(&sessions).Error; err != nil {
		return 0, 0, nil, err
	}
	if sessions == 0 {
		return 0, 0, nil, nil
	}
	if err = db.WithContext(ctx).Model(&domain.Message{}).Where("user_id = ?", userID).Count(&messages).Error; err != nil {
		return 0, 0, nil, err
	}

	// Latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).
		Model(&domain.Session{}).
		Select("updated_at").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return sessions, messages, &row.UpdatedAt, nil
}

// SessionStats returns the message count and latest message timestamp of one
// session. latest is nil for an empty session.
func SessionStats(ctx context.Context, db *gorm.DB, sessionID string) (count int64, latest *time.Time, err error) {
	if count, err = CountMessages(ctx, db, sessionID); err != nil || count == 0 {
		return count, nil, err
	}
	latest, err = latestTimestamp(ctx, db, sessionID)
	return count, latest, err
}
