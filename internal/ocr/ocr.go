// Package ocr extracts printed text from prescription images.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Em-Vi/MediScan/internal/config"
)

// Extractor returns the text found in an image. Empty text with a nil error
// means the image was processed but nothing was legible.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// Static returns Text for every image.
type Static struct {
	Text string
}

func (s Static) Extract(ctx context.Context, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Text, nil
}

// OCRSpace calls the OCR.space parse/image endpoint.
type OCRSpace struct {
	apiKey   string
	url      string
	language string
	client   *http.Client
}

// NewOCRSpace returns a client posting to url with the given API key.
func NewOCRSpace(apiKey, url, language string, timeout time.Duration) *OCRSpace {
	if language == "" {
		language = "eng"
	}
	return &OCRSpace{
		apiKey:   apiKey,
		url:      url,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// Extract uploads image as multipart form data and joins the parsed text of
// every page.
func (o *OCRSpace) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("ocrspace: empty image")
	}
	ext := strings.TrimPrefix(mimetype.Detect(image).Extension(), ".")
	if ext == "" {
		ext = "png"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"apikey":            o.apiKey,
		"language":          o.language,
		"isOverlayRequired": "false",
		"scale":             "true",
		"OCREngine":         "2",
		"filetype":          strings.ToUpper(ext),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", "prescription."+ext)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("apikey", o.apiKey)

	res, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocrspace: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ocrspace: read body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocrspace: status %d", res.StatusCode)
	}

	var out ocrSpaceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("ocrspace: decode: %w", err)
	}
	if out.IsErroredOnProcessing {
		return "", fmt.Errorf("ocrspace: processing failed: %s", errorText(out.ErrorMessage))
	}

	parts := make([]string, 0, len(out.ParsedResults))
	for _, p := range out.ParsedResults {
		if t := strings.TrimSpace(p.ParsedText); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// errorText flattens OCR.space's ErrorMessage, which is either a string or
// an array of strings.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// New builds the Extractor selected by cfg. OCR.space without an API key
// degrades to an extractor that never finds text; degraded reports that case.
func New(cfg config.OCRConfig) (e Extractor, degraded bool, err error) {
	switch cfg.Provider {
	case "mock":
		return Static{Text: "Paracetamol 500mg - 1 tablet twice daily"}, false, nil
	case "ocrspace", "":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return Static{}, true, nil
		}
		return NewOCRSpace(cfg.APIKey, cfg.URL, cfg.Language, cfg.Timeout), false, nil
	default:
		return nil, false, errors.New("ocr: unknown provider " + cfg.Provider)
	}
}
