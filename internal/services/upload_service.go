// Package services – UploadService
//
// UploadService stores prescription images in the blob store and records
// them against the uploading user.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/blob"
	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/repo"
)

// UploadService keeps uploaded images.
type UploadService struct {
	DB    *gorm.DB
	Store blob.Store

	// MaxBytes rejects larger uploads when > 0.
	MaxBytes int64
}

// Upload stores data for userID. Storage failures are returned.
func (s *UploadService) Upload(ctx context.Context, userID, originalName string, data []byte) (*domain.Upload, error) {
	ctx, span := observability.StartSpan(ctx, "UploadService.Upload",
		attribute.String("user.id", userID),
		attribute.Int("bytes", len(data)))
	defer span.End()

	mt, err := sniffImage(data, s.MaxBytes)
	if err != nil {
		return nil, err
	}
	name := blob.ObjectName(mt.Extension())

	start := time.Now()
	url, err := s.Store.Put(ctx, name, mt.String(), data)
	observability.ObserveCollaborator(observability.CollaboratorBlob, start)
	if err != nil {
		observability.CollaboratorFailed(observability.CollaboratorBlob)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	u := &domain.Upload{
		UserID:           userID,
		Filename:         name,
		OriginalFilename: baseName(originalName),
		ContentType:      mt.String(),
		Size:             int64(len(data)),
		URL:              url,
	}
	if err := repo.CreateUpload(ctx, s.DB, u); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns the uploads of userID, newest first.
func (s *UploadService) List(ctx context.Context, userID string) ([]domain.Upload, error) {
	out, err := repo.ListUploads(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Upload{}
	}
	return out, nil
}

// baseName strips any client-supplied directories from name.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
