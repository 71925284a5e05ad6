package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// CreateUpload records a stored image. A zero ID is replaced by a new UUID.
func CreateUpload(ctx context.Context, db *gorm.DB, u *domain.Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(u).Error
}

// ListUploads returns a user's uploads, newest first.
func ListUploads(ctx context.Context, db *gorm.DB, userID string) ([]domain.Upload, error) {
	var out []domain.Upload
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}
