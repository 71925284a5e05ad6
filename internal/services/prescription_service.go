// Package services – PrescriptionService
//
// PrescriptionService turns a photo of a prescription into a clinical
// summary: OCR first, then the AI collaborator on the extracted text. It is
// stateless. Collaborator failures are returned as readable messages rather
// than errors; only malformed uploads are rejected.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/ocr"
)

// PrescriptionService analyzes prescription images.
type PrescriptionService struct {
	OCR ocr.Extractor
	AI  ai.Generator

	// MaxBytes rejects larger uploads when > 0.
	MaxBytes int64
}

// AnalyzePrescription extracts the text of image and asks the AI collaborator
// for a structured analysis. When nothing legible is found the AI is not
// called and ai.UnreadableImageMessage is returned.
func (s *PrescriptionService) AnalyzePrescription(ctx context.Context, image []byte) (string, error) {
	ctx, span := observability.StartSpan(ctx, "PrescriptionService.AnalyzePrescription",
		attribute.Int("image.bytes", len(image)))
	defer span.End()

	if _, err := sniffImage(image, s.MaxBytes); err != nil {
		return "", err
	}

	text, err := s.extract(ctx, image)
	if err != nil {
		return ai.AnalysisFailedMessage, nil
	}
	if text == "" {
		return ai.UnreadableImageMessage, nil
	}

	start := time.Now()
	analysis, err := s.AI.Generate(ctx, ai.PrescriptionPrompt(text))
	observability.ObserveCollaborator(observability.CollaboratorAI, start)
	if err == nil && strings.TrimSpace(analysis) == "" {
		err = ai.ErrEmptyCompletion
	}
	if err != nil {
		observability.CollaboratorFailed(observability.CollaboratorAI)
		loggerFor(ctx).Warn().Err(err).Msg("prescription analysis failed")
		return ai.AnalysisFailedMessage, nil
	}
	return analysis, nil
}

// ExtractText returns the raw OCR text of image. An OCR failure yields empty
// text, the same as an unreadable image.
func (s *PrescriptionService) ExtractText(ctx context.Context, image []byte) (string, error) {
	ctx, span := observability.StartSpan(ctx, "PrescriptionService.ExtractText",
		attribute.Int("image.bytes", len(image)))
	defer span.End()

	if _, err := sniffImage(image, s.MaxBytes); err != nil {
		return "", err
	}
	text, _ := s.extract(ctx, image)
	return text, nil
}

func (s *PrescriptionService) extract(ctx context.Context, image []byte) (string, error) {
	start := time.Now()
	text, err := s.OCR.Extract(ctx, image)
	observability.ObserveCollaborator(observability.CollaboratorOCR, start)
	if err != nil {
		observability.CollaboratorFailed(observability.CollaboratorOCR)
		loggerFor(ctx).Warn().Err(err).Msg("ocr extraction failed")
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// sniffImage checks that data is a non-empty image no larger than max bytes
// and returns its detected type.
func sniffImage(data []byte, max int64) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if max > 0 && int64(len(data)) > max {
		return nil, ErrUploadTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, ErrNotAnImage
	}
	return mt, nil
}
