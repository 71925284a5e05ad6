// Image HTTP handlers. All take a multipart form with the image in "file".
//
//   - POST /image/analyze   (OCR + AI analysis of a prescription)
//   - POST /image/ocr       (OCR text only)
//   - POST /image/upload    (store the image)
//   - GET  /image/uploads   (list stored images)
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/domain"
)

const formFileField = "file"

// AnalysisResponse carries the AI analysis, or a readable explanation of why
// none could be produced.
type AnalysisResponse struct {
	Analysis string `json:"analysis" example:"**Medications**: Amoxicillin 500 mg..."`
}

// OCRResponse carries the extracted text. Message is set when nothing
// legible was found.
type OCRResponse struct {
	Text    string `json:"text"              example:"Amoxicillin 500mg TID x 7 days"`
	Message string `json:"message,omitempty" example:"No text could be extracted from the image."`
}

// UploadResponse describes a stored image.
type UploadResponse struct {
	ID       string `json:"id"       example:"9b2e4c1a-6f0d-4e55-8a77-0c1d2e3f4a5b"`
	URL      string `json:"url"      example:"/uploads/9b2e4c1a-6f0d-4e55-8a77-0c1d2e3f4a5b.jpg"`
	Filename string `json:"filename" example:"9b2e4c1a-6f0d-4e55-8a77-0c1d2e3f4a5b.jpg"`
}

// UploadsResponse lists stored images, newest first.
type UploadsResponse struct {
	Uploads []domain.Upload `json:"uploads"`
}

// readImage reads the "file" part, reading at most one byte past the limit
// so the service can reject oversized files.
func (h *Handlers) readImage(c *gin.Context) (data []byte, name string, okRead bool) {
	fh, err := c.FormFile(formFileField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload))
			return nil, "", false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return nil, "", false
	}
	f, err := fh.Open()
	if err != nil {
		failErr(c, err)
		return nil, "", false
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		failErr(c, err)
		return nil, "", false
	}
	return data, fh.Filename, true
}

// AnalyzeImage godoc
// @ID          analyzeImage
// @Summary     Analyze a prescription image
// @Description Extracts the prescription text and asks the AI assistant for a structured analysis.
// @Description Collaborator failures are reported in the analysis text with 200.
// @Tags        Image
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file  true  "Prescription image"
// @Success     200  {object}  handlers.AnalysisResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, empty or non-image file"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Router      /image/analyze [post]
func (h *Handlers) AnalyzeImage(c *gin.Context) {
	if _, authed := principal(c); !authed {
		return
	}
	data, _, read := h.readImage(c)
	if !read {
		return
	}
	analysis, err := h.rx.AnalyzePrescription(c.Request.Context(), data)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AnalysisResponse{Analysis: analysis})
}

// ExtractImageText godoc
// @ID          extractImageText
// @Summary     Extract the text of an image
// @Tags        Image
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file  true  "Image"
// @Success     200  {object}  handlers.OCRResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, empty or non-image file"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Router      /image/ocr [post]
func (h *Handlers) ExtractImageText(c *gin.Context) {
	if _, authed := principal(c); !authed {
		return
	}
	data, _, read := h.readImage(c)
	if !read {
		return
	}
	text, err := h.rx.ExtractText(c.Request.Context(), data)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := OCRResponse{Text: text}
	if text == "" {
		resp.Message = ai.UnreadableImageMessage
	}
	ok(c, http.StatusOK, resp)
}

// UploadImage godoc
// @ID          uploadImage
// @Summary     Store an image
// @Tags        Image
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file  true  "Image"
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, empty or non-image file"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage failure"
// @Router      /image/upload [post]
func (h *Handlers) UploadImage(c *gin.Context) {
	uid, authed := principal(c)
	if !authed {
		return
	}
	data, name, read := h.readImage(c)
	if !read {
		return
	}
	up, err := h.uploads.Upload(c.Request.Context(), uid, name, data)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, UploadResponse{ID: up.ID, URL: up.URL, Filename: up.Filename})
}

// ListUploads godoc
// @ID          listUploads
// @Summary     List stored images
// @Tags        Image
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UploadsResponse
// @Router      /image/uploads [get]
func (h *Handlers) ListUploads(c *gin.Context) {
	uid, authed := principal(c)
	if !authed {
		return
	}
	items, err := h.uploads.List(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UploadsResponse{Uploads: items})
}
