// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// CreateUser inserts a new account. The email is stored as given; callers
// normalize it. A second account with the same email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, username, email, passwordHash string, verificationToken *string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             email,
		PasswordHash:      passwordHash,
		VerificationToken: verificationToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return firstUser(ctx, db, "id = ?", id)
}

// GetUserByEmail fetches a user by (already normalized) email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return firstUser(ctx, db, "email = ?", email)
}

// GetUserByVerificationToken fetches the user holding a pending token.
func GetUserByVerificationToken(ctx context.Context, db *gorm.DB, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return firstUser(ctx, db, "verification_token = ?", token)
}

// UserExists reports whether a user with the given ID is present.
func UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// MarkUserVerified sets is_verified and clears the pending token.
func MarkUserVerified(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_verified":        true,
			"verification_token": gorm.Expr("NULL"),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerificationToken replaces the pending token of a user.
func SetVerificationToken(ctx context.Context, db *gorm.DB, id, token string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verification_token": token,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func firstUser(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where(where, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
