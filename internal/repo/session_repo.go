// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// CreateSession inserts a new Session owned by userID with the given title.
func CreateSession(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// StartSession creates a session owned by userID and appends its first
// messages in the same transaction, so a failed append leaves no session.
func StartSession(ctx context.Context, db *gorm.DB, userID, title string, msgs []NewMessage, now time.Time) (*domain.Session, []domain.Message, error) {
	var (
		sess *domain.Session
		out  []domain.Message
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if sess, err = CreateSession(ctx, tx, userID, title); err != nil {
			return err
		}
		out, err = AppendMessages(ctx, tx, sess.ID, userID, msgs, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, out, nil
}

// GetSession fetches a session by ID regardless of owner, so callers can
// tell a missing session from a foreign one.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns all sessions belonging to userID, newest first.
func ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id asc").
		Find(&out).Error
	return out, err
}

// UpdateSessionTitle updates the title of a session owned by userID.
// It returns ErrNotFound when no row matches.
func UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"title": title, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// touchSession moves updated_at forward to at. It never moves it back.
func touchSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND updated_at < ?", id, at).
		UpdateColumn("updated_at", at).Error
}
